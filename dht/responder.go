package dht

import "net"

// Responder is the pluggable capability RPC Core forwards decoded inbound
// requests to. Its absence is a first-class state (a nil Responder field),
// not a null-object stand-in: RPC checks for nil before dispatching.
type Responder interface {
	OnPing(from *net.UDPAddr, id Id) error
	OnFindNode(from *net.UDPAddr, id, target Id) ([]*Node, error)
	OnGetPeers(from *net.UDPAddr, id, infoHash Id, token []byte) (nodes []*Node, peers []*net.UDPAddr, err error)
	OnAnnouncePeer(from *net.UDPAddr, id, infoHash Id, port int, impliedPort bool, token []byte) error
	OnGetValue(from *net.UDPAddr, id, target Id, seq *int64, token []byte) (*GetValueResult, error)
	OnPut(from *net.UDPAddr, id Id, item PutRequest, token []byte) error
}

// GetValueResult is what a Responder returns for get_value: either a
// matching immutable blob or a mutable item whose seq is at least the
// requested hint, or neither if nothing local matches.
type GetValueResult struct {
	Immutable []byte
	Mutable   *MutableItem
}

// PutRequest is the normalized form of a put request's arguments, covering
// both the immutable and mutable shapes.
type PutRequest struct {
	Immutable []byte
	Mutable   *MutableItem
}
