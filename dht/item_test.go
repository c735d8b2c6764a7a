package dht

import (
	"crypto/ed25519"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMutableItemSignAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	item := &MutableItem{PublicKey: pub, Value: []byte("Hello World!"), Seq: 1000}
	item.Sign(priv)
	require.True(t, item.VerifySignature())

	item.Value = []byte("tampered")
	require.False(t, item.VerifySignature())
}

func TestMutableItemTargetIncludesSalt(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	noSalt := &MutableItem{PublicKey: pub}
	withSalt := &MutableItem{PublicKey: pub, Salt: []byte("abc")}
	require.NotEqual(t, noSalt.Target(), withSalt.Target())
}

func TestImmutableTargetIsSHA1(t *testing.T) {
	target := ImmutableTarget([]byte{1, 2, 3})
	target2 := ImmutableTarget([]byte{1, 2, 3})
	require.Equal(t, target, target2)
	sum := sha1.Sum([]byte{1, 2, 3})
	require.Equal(t, sum[:], target.Bytes())
}
