package dht

import (
	"net"
	"time"
)

// Node is a known peer in the DHT: its identifier, network address, and the
// bookkeeping the routing table and token manager need to judge liveness
// and write authorization.
type Node struct {
	Id      Id
	Addr    *net.UDPAddr
	Added   time.Time // first time this node entered the table
	LastSeen time.Time

	// Token is the most recent write-token this node has handed *us* in a
	// get_peers/get_value reply, echoed back on announce_peer/put.
	Token           []byte
	LastTokenRefresh time.Time
}

// NewNode constructs a Node freshly observed at now.
func NewNode(id Id, addr *net.UDPAddr, now time.Time) *Node {
	return &Node{Id: id, Addr: addr, Added: now, LastSeen: now}
}

// IsSecure reports whether the node's id is BEP-42 valid for its own IPv4
// address.
func (n *Node) IsSecure() bool {
	v4 := n.Addr.IP.To4()
	if v4 == nil {
		return false
	}
	var ip [4]byte
	copy(ip[:], v4)
	return n.Id.IsSecure(ip)
}

// Touch refreshes last-seen on a response or fresh query from this node.
func (n *Node) Touch(now time.Time) {
	n.LastSeen = now
}

// SetToken records a freshly issued write-token from this node.
func (n *Node) SetToken(tok []byte, now time.Time) {
	n.Token = tok
	n.LastTokenRefresh = now
}

// CompactNodeInfo is the 26-byte wire encoding of a node: 20-byte id, 4-byte
// IPv4, 2-byte big-endian port.
func (n *Node) CompactNodeInfo() []byte {
	buf := make([]byte, 26)
	copy(buf[:20], n.Id[:])
	v4 := n.Addr.IP.To4()
	copy(buf[20:24], v4)
	buf[24] = byte(n.Addr.Port >> 8)
	buf[25] = byte(n.Addr.Port)
	return buf
}

// DecodeCompactNodeInfo parses the 26-byte wire encoding produced by
// CompactNodeInfo.
func DecodeCompactNodeInfo(b []byte, now time.Time) (*Node, error) {
	if len(b) != 26 {
		return nil, ErrInvalidIdLength
	}
	id, err := IdFromBytes(b[:20])
	if err != nil {
		return nil, err
	}
	addr := &net.UDPAddr{
		IP:   net.IPv4(b[20], b[21], b[22], b[23]),
		Port: int(b[24])<<8 | int(b[25]),
	}
	return NewNode(id, addr, now), nil
}

// DecodeCompactNodeInfoList splits a nodes-field blob into individual
// Node records, 26 bytes each.
func DecodeCompactNodeInfoList(b []byte, now time.Time) []*Node {
	var out []*Node
	for off := 0; off+26 <= len(b); off += 26 {
		n, err := DecodeCompactNodeInfo(b[off:off+26], now)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// CompactPeerInfo is the 6-byte wire encoding of a peer address used in
// get_peers "values" lists: 4-byte IPv4 followed by 2-byte big-endian port.
func CompactPeerInfo(addr *net.UDPAddr) []byte {
	buf := make([]byte, 6)
	copy(buf[:4], addr.IP.To4())
	buf[4] = byte(addr.Port >> 8)
	buf[5] = byte(addr.Port)
	return buf
}

// DecodeCompactPeerInfo parses the 6-byte wire encoding produced by
// CompactPeerInfo.
func DecodeCompactPeerInfo(b []byte) *net.UDPAddr {
	if len(b) != 6 {
		return nil
	}
	return &net.UDPAddr{
		IP:   net.IPv4(b[0], b[1], b[2], b[3]),
		Port: int(b[4])<<8 | int(b[5]),
	}
}
