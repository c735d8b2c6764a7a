package dht

import (
	"crypto/hmac"
	"crypto/sha1"
	"net"
	"time"
)

// tokenRotation is how often the current write-token secret is replaced,
// per spec: the previous secret stays valid for one more rotation so tokens
// issued just before a rotation still validate.
const tokenRotation = 5 * time.Minute

// tokenLen is the number of bytes of the HMAC digest used as a token.
const tokenLen = 8

// tokenManager issues and validates write-tokens bound to a requester's
// address, rotating its HMAC secret on a timer the way BEP-5 describes.
type tokenManager struct {
	current  []byte
	previous []byte
	rotated  time.Time
}

func newTokenManager(now time.Time, randomSecret func() []byte) *tokenManager {
	return &tokenManager{current: randomSecret(), rotated: now}
}

func (m *tokenManager) maybeRotate(now time.Time, randomSecret func() []byte) {
	if now.Sub(m.rotated) < tokenRotation {
		return
	}
	m.previous = m.current
	m.current = randomSecret()
	m.rotated = now
}

func addrKey(addr *net.UDPAddr) []byte {
	key := make([]byte, 0, len(addr.IP)+2)
	key = append(key, addr.IP...)
	key = append(key, byte(addr.Port>>8), byte(addr.Port))
	return key
}

func sign(secret, data []byte) []byte {
	h := hmac.New(sha1.New, secret)
	h.Write(data)
	return h.Sum(nil)[:tokenLen]
}

// Issue returns the current write-token for addr.
func (m *tokenManager) Issue(addr *net.UDPAddr) []byte {
	return sign(m.current, addrKey(addr))
}

// Valid reports whether tok is a token this manager (at its current or
// immediately preceding secret) would have issued to addr.
func (m *tokenManager) Valid(addr *net.UDPAddr, tok []byte) bool {
	key := addrKey(addr)
	if hmac.Equal(tok, sign(m.current, key)) {
		return true
	}
	if m.previous != nil && hmac.Equal(tok, sign(m.previous, key)) {
		return true
	}
	return false
}
