package dht

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha1"
	"fmt"
)

// MaxValueSize is the BEP-44 limit on both immutable blobs and mutable
// item values.
const MaxValueSize = 1000

// MutableItem is a BEP-44 signed, sequence-numbered value addressed by the
// signer's public key (and an optional salt).
type MutableItem struct {
	PublicKey ed25519.PublicKey // 32 bytes
	Value     []byte
	Seq       int64
	Signature []byte // 64 bytes
	Salt      []byte // optional, <=64 bytes
	Cas       *int64 // optional compare-and-swap precondition
}

// Target returns the BEP-44 target id: SHA1(public_key || salt), salt
// omitted entirely when absent.
func (m *MutableItem) Target() Id {
	h := sha1.New()
	h.Write(m.PublicKey)
	h.Write(m.Salt)
	var id Id
	copy(id[:], h.Sum(nil))
	return id
}

// signingPayload renders the bencode fragment that is actually signed:
// "3:seqi<seq>e1:v<len>:<value>", with a "4:salt<len>:<salt>" prefix when a
// salt is present, per BEP-44.
func (m *MutableItem) signingPayload() []byte {
	var buf bytes.Buffer
	if len(m.Salt) > 0 {
		fmt.Fprintf(&buf, "4:salt%d:%s", len(m.Salt), m.Salt)
	}
	fmt.Fprintf(&buf, "3:seqi%de", m.Seq)
	fmt.Fprintf(&buf, "1:v%d:%s", len(m.Value), m.Value)
	return buf.Bytes()
}

// Sign computes and stores the item's signature using the matching private
// key. Callers that only ever verify incoming items never need this.
func (m *MutableItem) Sign(priv ed25519.PrivateKey) {
	m.Signature = ed25519.Sign(priv, m.signingPayload())
}

// VerifySignature reports whether Signature is valid for PublicKey over
// the item's current fields.
func (m *MutableItem) VerifySignature() bool {
	if len(m.PublicKey) != ed25519.PublicKeySize || len(m.Signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(m.PublicKey, m.signingPayload(), m.Signature)
}

// ImmutableTarget returns the BEP-44 target id for a raw immutable blob:
// SHA1 of the bytes.
func ImmutableTarget(v []byte) Id {
	h := sha1.Sum(v)
	var id Id
	copy(id[:], h[:])
	return id
}
