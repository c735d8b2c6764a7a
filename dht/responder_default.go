package dht

import (
	"net"
	"sync"
)

// defaultResponder is the built-in Responder this node attaches to itself
// once it believes it has a reachable public port and no external
// responder was configured (4.7). It answers find_node from the local
// routing table and otherwise holds no data — a fuller, production
// responder with bounded peer/value storage lives in package dhtserver for
// callers that want to opt in explicitly via Config.Server.
type defaultResponder struct {
	mu    sync.Mutex
	table *RoutingTable
}

func newDefaultResponder(table *RoutingTable) *defaultResponder {
	return &defaultResponder{table: table}
}

func (r *defaultResponder) OnPing(from *net.UDPAddr, id Id) error { return nil }

func (r *defaultResponder) OnFindNode(from *net.UDPAddr, id, target Id) ([]*Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Closest(target, BucketSize), nil
}

func (r *defaultResponder) OnGetPeers(from *net.UDPAddr, id, infoHash Id, token []byte) ([]*Node, []*net.UDPAddr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Closest(infoHash, BucketSize), nil, nil
}

func (r *defaultResponder) OnAnnouncePeer(from *net.UDPAddr, id, infoHash Id, port int, implied bool, token []byte) error {
	return nil
}

func (r *defaultResponder) OnGetValue(from *net.UDPAddr, id, target Id, seq *int64, token []byte) (*GetValueResult, error) {
	return nil, nil
}

func (r *defaultResponder) OnPut(from *net.UDPAddr, id Id, item PutRequest, token []byte) error {
	return nil
}
