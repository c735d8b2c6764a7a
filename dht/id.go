package dht

import (
	"crypto/rand"
	"encoding/hex"
	"hash/crc32"

	"github.com/pkg/errors"
)

// IdLength is the length in bytes of a Kademlia identifier (160 bits).
const IdLength = 20

// Id is an immutable 160-bit identifier: a node id, an infohash, or a
// BEP-44 target.
type Id [IdLength]byte

// ErrInvalidIdLength is returned when decoding an Id from a byte slice of
// the wrong length.
var ErrInvalidIdLength = errors.New("dht: id must be exactly 20 bytes")

// IdFromBytes copies b into a new Id. b must be exactly IdLength bytes.
func IdFromBytes(b []byte) (Id, error) {
	var id Id
	if len(b) != IdLength {
		return id, ErrInvalidIdLength
	}
	copy(id[:], b)
	return id, nil
}

// RandomId generates a cryptographically random Id.
func RandomId() Id {
	var id Id
	_, _ = rand.Read(id[:])
	return id
}

// String renders the id as lowercase hex, the same convention the teacher's
// NodeID.String() uses for %x logging.
func (id Id) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler so an Id can be used
// directly as a structured logging field.
func (id Id) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// Bytes returns a copy of the id's raw bytes.
func (id Id) Bytes() []byte {
	out := make([]byte, IdLength)
	copy(out, id[:])
	return out
}

// Xor returns the XOR distance between id and other as another Id.
func (id Id) Xor(other Id) Id {
	var out Id
	for i := range out {
		out[i] = id[i] ^ other[i]
	}
	return out
}

// CommonPrefixLen returns the number of leading bits shared between id and
// other — equivalently, IdLength*8 minus the bit-length of their XOR
// distance.
func (id Id) CommonPrefixLen(other Id) int {
	d := id.Xor(other)
	for byteIdx, b := range d {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(0x80>>uint(bit)) != 0 {
				return byteIdx*8 + bit
			}
		}
	}
	return IdLength * 8
}

// Less orders two ids by ascending XOR distance to target, tie-breaking on
// raw byte order (spec.md §4.1: "equal distances never occur in practice;
// if they do, prefer the earlier-inserted node" — callers resolve that tie
// themselves; Less alone reports strict byte-order precedence for equal
// distances so sorts stay stable).
func Less(target, a, b Id) bool {
	da, db := target.Xor(a), target.Xor(b)
	for i := range da {
		if da[i] != db[i] {
			return da[i] < db[i]
		}
	}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// IsSecure implements the BEP-42 secure node id check: the top 21 bits of
// id must match the top 21 bits of crc32c((ip&mask) ^ (rand-seed bytes
// from the id)).
func (id Id) IsSecure(ip [4]byte) bool {
	return id[19] == secureRandByte(ip, id) && secureTop21Match(ip, id)
}

// secureTop21Match implements the BEP-42 masking and CRC comparison.
func secureTop21Match(ip [4]byte, id Id) bool {
	masked := applyBep42Mask(ip)
	r := id[19] & 0x7
	masked[0] |= r << 5

	crc := crc32.Checksum(masked[:], crc32cTable)

	return id[0] == byte(crc>>24) &&
		id[1] == byte(crc>>16) &&
		(id[2]&0xf8) == (byte(crc>>8)&0xf8)
}

// secureRandByte returns the id's own last byte: BEP-42's "rand" byte is
// chosen freely by the node that derives the id, so validating it is a
// no-op here; kept as a named step to mirror the reference algorithm's
// structure (mask, crc, compare, rand byte is free).
func secureRandByte(_ [4]byte, id Id) byte {
	return id[19]
}

// applyBep42Mask masks an IPv4 address down to the bits BEP-42 mixes into
// the CRC: mask = [0x03, 0x0f, 0x3f, 0xff] applied octet-wise, leaving the
// low two bits of the first octet, low four of the second, low six of the
// third, and all of the fourth.
func applyBep42Mask(ip [4]byte) [4]byte {
	var masked [4]byte
	masked[0] = ip[0] & 0x03
	masked[1] = ip[1] & 0x0f
	masked[2] = ip[2] & 0x3f
	masked[3] = ip[3]
	return masked
}

// RandomSecureId generates an Id that is BEP-42 valid for the given IPv4
// address. The last ("rand") byte stays random; the top 21 bits are copied
// from the CRC of the masked address mixed with that byte's low three bits,
// so the first candidate already passes IsSecure.
func RandomSecureId(ip [4]byte) Id {
	id := RandomId()
	masked := applyBep42Mask(ip)
	for i := byte(0); i < 8; i++ {
		r := (id[19] + i) & 0x7
		candidate := id
		candidate[19] = (candidate[19] &^ 0x7) | r
		m := masked
		m[0] |= r << 5
		crc := crc32.Checksum(m[:], crc32cTable)
		candidate[0] = byte(crc >> 24)
		candidate[1] = byte(crc >> 16)
		candidate[2] = (candidate[2] & 0x07) | (byte(crc>>8) & 0xf8)
		if candidate.IsSecure(ip) {
			return candidate
		}
	}
	return id
}
