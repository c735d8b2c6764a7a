package dht

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenManagerIssueAndValidate(t *testing.T) {
	now := time.Now()
	m := newTokenManager(now, randomSecret)
	addr := &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 6881}

	tok := m.Issue(addr)
	require.True(t, m.Valid(addr, tok))

	other := &net.UDPAddr{IP: net.IPv4(5, 6, 7, 8), Port: 6881}
	require.False(t, m.Valid(other, tok))
}

func TestTokenManagerAcceptsPreviousSecretAfterRotation(t *testing.T) {
	now := time.Now()
	m := newTokenManager(now, randomSecret)
	addr := &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 6881}
	tok := m.Issue(addr)

	m.maybeRotate(now.Add(tokenRotation+time.Second), randomSecret)
	require.True(t, m.Valid(addr, tok))

	m.maybeRotate(now.Add(2*tokenRotation+2*time.Second), randomSecret)
	require.False(t, m.Valid(addr, tok))
}
