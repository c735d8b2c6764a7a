// Package dhtserver provides an opt-in Responder implementation that
// actually stores announced peers and BEP-44 values, for callers who want
// their node to serve other peers' queries instead of only issuing its
// own. Wire it in via dht.Config.Server or dht.Builder.Server.
package dhtserver

import (
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/mainline-dht/dhtnode/dht"
)

// peerEntry is one announced peer address with the time it was last
// refreshed, so stale entries can be swept.
type peerEntry struct {
	addr *net.UDPAddr
	seen time.Time
}

// peerSetCapacity bounds how many distinct peers are remembered per
// infohash.
const peerSetCapacity = 128

// defaultCacheSize bounds how many distinct infohashes/targets the server
// keeps peer sets or values for; the oldest is evicted first via the LRU
// cache from the pack.
const defaultCacheSize = 8192

// peerAnnounceTTL is how long an announced peer is still returned by
// get_peers without being re-announced.
const peerAnnounceTTL = 30 * time.Minute

// DefaultServer is a bounded in-memory Responder: get_peers/announce_peer
// backed by one LRU-capped peer set per infohash, and get_value/put backed
// by an LRU-capped map of immutable blobs and mutable items.
type DefaultServer struct {
	mu sync.Mutex

	peers     *lru.Cache // infohash -> *[]peerEntry
	immutable *lru.Cache // target -> []byte
	mutable   *lru.Cache // target -> *dht.MutableItem
}

// NewDefaultServer constructs a server with the standard cache sizes.
func NewDefaultServer() *DefaultServer {
	peers, _ := lru.New(defaultCacheSize)
	immutable, _ := lru.New(defaultCacheSize)
	mutable, _ := lru.New(defaultCacheSize)
	return &DefaultServer{peers: peers, immutable: immutable, mutable: mutable}
}

func (s *DefaultServer) OnPing(from *net.UDPAddr, id dht.Id) error { return nil }

// OnFindNode keeps no node contacts of its own; this server only tracks
// announced peers and stored values. Returning no nodes here is not a dead
// path — dispatch falls back to the core's own routing table whenever a
// Responder comes back empty, so find_node still answers correctly.
func (s *DefaultServer) OnFindNode(from *net.UDPAddr, id, target dht.Id) ([]*dht.Node, error) {
	return nil, nil
}

func (s *DefaultServer) OnGetPeers(from *net.UDPAddr, id, infoHash dht.Id, token []byte) ([]*dht.Node, []*net.UDPAddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.peers.Get(infoHash)
	if !ok {
		return nil, nil, nil
	}
	entries := *v.(*[]peerEntry)
	now := time.Now()
	out := make([]*net.UDPAddr, 0, len(entries))
	for _, e := range entries {
		if now.Sub(e.seen) > peerAnnounceTTL {
			continue
		}
		out = append(out, e.addr)
	}
	return nil, out, nil
}

func (s *DefaultServer) OnAnnouncePeer(from *net.UDPAddr, id, infoHash dht.Id, port int, implied bool, token []byte) error {
	addr := &net.UDPAddr{IP: from.IP, Port: port}

	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []peerEntry
	if v, ok := s.peers.Get(infoHash); ok {
		entries = *v.(*[]peerEntry)
	}
	now := time.Now()
	for i, e := range entries {
		if e.addr.IP.Equal(addr.IP) && e.addr.Port == addr.Port {
			entries[i].seen = now
			s.peers.Add(infoHash, &entries)
			return nil
		}
	}
	if len(entries) >= peerSetCapacity {
		entries = entries[1:]
	}
	entries = append(entries, peerEntry{addr: addr, seen: now})
	s.peers.Add(infoHash, &entries)
	return nil
}

func (s *DefaultServer) OnGetValue(from *net.UDPAddr, id, target dht.Id, seq *int64, token []byte) (*dht.GetValueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.mutable.Get(target); ok {
		item := v.(*dht.MutableItem)
		// seq is the caller's "I already have up to this sequence number"
		// hint (BEP-44): only send the value back if our copy is newer.
		if seq == nil || item.Seq > *seq {
			return &dht.GetValueResult{Mutable: item}, nil
		}
		return nil, nil
	}
	if v, ok := s.immutable.Get(target); ok {
		return &dht.GetValueResult{Immutable: v.([]byte)}, nil
	}
	return nil, nil
}

func (s *DefaultServer) OnPut(from *net.UDPAddr, id dht.Id, req dht.PutRequest, token []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Immutable != nil {
		s.immutable.Add(dht.ImmutableTarget(req.Immutable), req.Immutable)
		return nil
	}
	if req.Mutable == nil {
		return nil
	}
	target := req.Mutable.Target()
	if !req.Mutable.VerifySignature() {
		return dht.ResponderInvalidSignature{}
	}
	if existing, ok := s.mutable.Get(target); ok {
		cur := existing.(*dht.MutableItem)
		if req.Mutable.Cas != nil && *req.Mutable.Cas != cur.Seq {
			return dht.ResponderCASMismatch{}
		}
		if req.Mutable.Seq < cur.Seq {
			return dht.ResponderSeqTooOld{}
		}
	}
	s.mutable.Add(target, req.Mutable)
	return nil
}
