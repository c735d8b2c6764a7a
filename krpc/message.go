// Package krpc implements the bencode wire format for Mainline DHT
// messages (BEP-5, BEP-44): the request/response/error envelope and the
// per-method argument shapes, encoded with jackpal/bencode-go the way the
// reference client in the retrieval pack does.
package krpc

import (
	"bytes"

	"github.com/jackpal/bencode-go"
)

// Error codes from BEP-5 / BEP-44.
const (
	ErrGeneric         = 201
	ErrServer          = 202
	ErrProtocol        = 203
	ErrMethodUnknown   = 204
	ErrMessageTooBig   = 205
	ErrInvalidSignature = 206
	ErrSeqLessThanCurrent = 301
	ErrCASMismatch     = 302
)

// Message is the top-level KRPC envelope shared by queries, responses, and
// errors.
type Message struct {
	T  string `bencode:"t"`
	Y  string `bencode:"y"`
	V  string `bencode:"v,omitempty"`
	IP string `bencode:"ip,omitempty"`
	RO int    `bencode:"ro,omitempty"`

	Q string        `bencode:"q,omitempty"`
	A *QueryArgs    `bencode:"a,omitempty"`
	R *RetArgs      `bencode:"r,omitempty"`
	E []interface{} `bencode:"e,omitempty"`
}

// QueryArgs is the union of every method's "a" dict. Unused fields are
// simply absent from the encoded bencode via omitempty, the same flattened
// shape the reference client's QueryMessage struct uses.
type QueryArgs struct {
	Id           string `bencode:"id"`
	Target       string `bencode:"target,omitempty"`
	InfoHash     string `bencode:"info_hash,omitempty"`
	Port         int    `bencode:"port,omitempty"`
	ImpliedPort  int    `bencode:"implied_port,omitempty"`
	Token        string `bencode:"token,omitempty"`
	Seq          *int64 `bencode:"seq,omitempty"`
	V            string `bencode:"v,omitempty"`
	K            string `bencode:"k,omitempty"`
	Sig          string `bencode:"sig,omitempty"`
	Salt         string `bencode:"salt,omitempty"`
	Cas          *int64 `bencode:"cas,omitempty"`
}

// RetArgs is the union of every method's "r" dict.
type RetArgs struct {
	Id     string `bencode:"id"`
	Nodes  string `bencode:"nodes,omitempty"`
	Token  string `bencode:"token,omitempty"`
	Values []string `bencode:"values,omitempty"`
	V      string `bencode:"v,omitempty"`
	K      string `bencode:"k,omitempty"`
	Sig    string `bencode:"sig,omitempty"`
	Seq    *int64 `bencode:"seq,omitempty"`
}

// NewError builds the [code, description] list KRPC expects for the "e"
// field.
func NewError(code int, text string) []interface{} {
	return []interface{}{code, text}
}

// ParseError extracts code and text from a decoded "e" field. ok is false
// if e is not a well-formed two-element error list.
func ParseError(e []interface{}) (code int, text string, ok bool) {
	if len(e) < 2 {
		return 0, "", false
	}
	switch n := e[0].(type) {
	case int64:
		code = int(n)
	case int:
		code = n
	default:
		return 0, "", false
	}
	s, ok := e[1].(string)
	return code, s, ok
}

// Encode serializes a Message to its bencode wire form.
func Encode(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a bencode-encoded datagram into a Message.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := bencode.Unmarshal(bytes.NewReader(b), &m); err != nil {
		return nil, err
	}
	return &m, nil
}
