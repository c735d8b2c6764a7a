package dht

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdXorSelf(t *testing.T) {
	id := RandomId()
	require.Equal(t, Id{}, id.Xor(id))
}

func TestCommonPrefixLen(t *testing.T) {
	var a, b Id
	a[0] = 0xff
	b[0] = 0x7f
	require.Equal(t, 0, a.CommonPrefixLen(b))

	a = Id{}
	b = Id{}
	require.Equal(t, IdLength*8, a.CommonPrefixLen(b))
}

func TestLessOrdersByDistance(t *testing.T) {
	var target, near, far Id
	near[19] = 1
	far[19] = 2
	require.True(t, Less(target, near, far))
	require.False(t, Less(target, far, near))
}

func TestImmutableTargetMatchesKnownVector(t *testing.T) {
	target := ImmutableTarget([]byte("Hello World!"))
	require.Equal(t, "e5f96f6f38320f0f33959cb4d3d656452117aadb", target.String())
}

func TestRandomSecureIdIsSecure(t *testing.T) {
	ip := [4]byte{203, 0, 113, 42}
	id := RandomSecureId(ip)
	require.True(t, id.IsSecure(ip))
}

func TestIdFromBytesRejectsWrongLength(t *testing.T) {
	_, err := IdFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidIdLength)
}
