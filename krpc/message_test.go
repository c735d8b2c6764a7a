package krpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	seq := int64(42)
	m := &Message{
		T: "aa",
		Y: "q",
		Q: "get_value",
		A: &QueryArgs{
			Id:     "01234567890123456789",
			Target: "01234567890123456789",
			Seq:    &seq,
		},
	}
	b, err := Encode(m)
	require.NoError(t, err)

	decoded, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, m.T, decoded.T)
	require.Equal(t, m.Y, decoded.Y)
	require.Equal(t, m.Q, decoded.Q)
	require.NotNil(t, decoded.A)
	require.Equal(t, m.A.Id, decoded.A.Id)
	require.Equal(t, m.A.Target, decoded.A.Target)
	require.NotNil(t, decoded.A.Seq)
	require.Equal(t, *m.A.Seq, *decoded.A.Seq)
}

func TestErrorRoundTrip(t *testing.T) {
	m := &Message{T: "bb", Y: "e", E: NewError(ErrProtocol, "bad token")}
	b, err := Encode(m)
	require.NoError(t, err)

	decoded, err := Decode(b)
	require.NoError(t, err)
	code, text, ok := ParseError(decoded.E)
	require.True(t, ok)
	require.Equal(t, ErrProtocol, code)
	require.Equal(t, "bad token", text)
}

func TestResponseRoundTrip(t *testing.T) {
	m := &Message{
		T: "cc",
		Y: "r",
		R: &RetArgs{Id: "01234567890123456789", Token: "tok1234"},
	}
	b, err := Encode(m)
	require.NoError(t, err)

	decoded, err := Decode(b)
	require.NoError(t, err)
	require.NotNil(t, decoded.R)
	require.Equal(t, m.R.Id, decoded.R.Id)
	require.Equal(t, m.R.Token, decoded.R.Token)
}
