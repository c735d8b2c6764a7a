package dht

import (
	"net"
	"time"

	"github.com/mainline-dht/dhtnode/metrics"
)

// queryMethod is the wire method an iterative GET query drives.
type queryMethod int

const (
	MethodFindNode queryMethod = iota
	MethodGetPeers
	MethodGetValue
)

// alpha is the Kademlia lookup concurrency parameter.
const alpha = 3

// getQuery is the state of one iterative GET lookup: its candidate,
// visited, responded and in-flight node sets.
type getQuery struct {
	target Id
	method queryMethod
	seqHint *int64

	candidates []*Node // not yet queried, closest-first once sorted
	visited    map[Id]bool
	responded  []*Node // nodes that answered, with tokens recorded on Node

	inFlight map[uint16]*Node

	sink ResponseSink

	highestSeq         *int64 // highest mutable seq delivered so far
	immutableDelivered bool

	// onLookupDoneFor is set when this getQuery is the internal
	// FindNode/GetPeers/GetValue lookup a PUT launches ahead of itself;
	// it names the PUT's target so Core.Tick can hand off the resulting
	// destination set instead of treating this as a caller-facing GET.
	onLookupDoneFor Id

	done bool
}

func newGetQuery(target Id, method queryMethod, seqHint *int64, seed []*Node, sink ResponseSink) *getQuery {
	q := &getQuery{
		target:   target,
		method:   method,
		seqHint:  seqHint,
		visited:  make(map[Id]bool),
		inFlight: make(map[uint16]*Node),
		sink:     sink,
	}
	q.candidates = append(q.candidates, seed...)
	return q
}

func sortByDistance(target Id, nodes []*Node) {
	// Simple insertion sort: candidate lists stay small (bounded by K*alpha
	// in practice), so this avoids pulling in sort for a handful of swaps
	// on every step.
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && Less(target, nodes[j].Id, nodes[j-1].Id); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

// step sends up to alpha-inFlight requests to the nearest unqueried
// candidates. c provides the transaction table and socket.
func (q *getQuery) step(c *Core, now time.Time) {
	if q.done {
		return
	}
	sortByDistance(q.target, q.candidates)
	for len(q.inFlight) < alpha && len(q.candidates) > 0 {
		n := q.candidates[0]
		q.candidates = q.candidates[1:]
		if q.visited[n.Id] {
			continue
		}
		q.visited[n.Id] = true
		tid, err := c.sendGetRequest(q, n, now)
		if err != nil {
			continue
		}
		q.inFlight[tid] = n
	}
	q.checkDone(c)
}

// onResponse handles a matched reply for this query.
func (q *getQuery) onResponse(c *Core, tid uint16, from *net.UDPAddr, msg *decodedResponse, now time.Time) {
	n, ok := q.inFlight[tid]
	if !ok {
		return
	}
	delete(q.inFlight, tid)
	n.Touch(now)
	if msg.token != nil {
		n.SetToken(msg.token, now)
	}
	q.responded = append(q.responded, n)

	worst := q.worstResponded()
	for _, hint := range msg.nodes {
		if q.visited[hint.Id] {
			continue
		}
		if worst == (Id{}) || Less(q.target, hint.Id, worst) || len(q.responded) < BucketSize {
			q.candidates = append(q.candidates, hint)
		}
	}

	switch q.method {
	case MethodGetPeers:
		if len(msg.peers) > 0 {
			q.sink.Send(Response{Kind: RespPeers, Peers: msg.peers})
		}
	case MethodGetValue:
		if msg.immutable != nil && !q.immutableDelivered && ImmutableTarget(msg.immutable) == q.target {
			q.immutableDelivered = true
			q.sink.Send(Response{Kind: RespImmutable, Immutable: msg.immutable})
		}
		if msg.mutable != nil && (q.seqHint == nil || msg.mutable.Seq > *q.seqHint) &&
			(q.highestSeq == nil || msg.mutable.Seq > *q.highestSeq) {
			seq := msg.mutable.Seq
			q.highestSeq = &seq
			q.sink.Send(Response{Kind: RespMutable, Mutable: msg.mutable})
		}
	}
}

// worstResponded returns the Id of the k-th (BucketSize-th) closest
// responder so far. With fewer than K responders it is the farthest one;
// with none it is the zero Id.
func (q *getQuery) worstResponded() Id {
	if len(q.responded) == 0 {
		return Id{}
	}
	ids := make([]*Node, len(q.responded))
	copy(ids, q.responded)
	sortByDistance(q.target, ids)
	idx := len(ids) - 1
	if idx >= BucketSize {
		idx = BucketSize - 1
	}
	return ids[idx].Id
}

// checkDone evaluates the completion condition: either the K closest
// responders are all nearer than every remaining candidate, or there is
// nothing left to do.
func (q *getQuery) checkDone(c *Core) {
	if q.done {
		return
	}
	if len(q.candidates) == 0 && len(q.inFlight) == 0 {
		q.finish(c)
		return
	}
	if len(q.responded) < BucketSize {
		return
	}
	sorted := make([]*Node, len(q.responded))
	copy(sorted, q.responded)
	sortByDistance(q.target, sorted)
	kth := sorted[BucketSize-1]
	for _, cand := range q.candidates {
		if Less(q.target, cand.Id, kth.Id) {
			return
		}
	}
	q.finish(c)
}

// finish delivers the terminal payload and closes the sink.
func (q *getQuery) finish(c *Core) {
	q.done = true
	sorted := make([]*Node, len(q.responded))
	copy(sorted, q.responded)
	sortByDistance(q.target, sorted)
	if len(sorted) > BucketSize {
		sorted = sorted[:BucketSize]
	}
	if q.method == MethodFindNode {
		q.sink.Send(Response{Kind: RespClosestNodes, ClosestNodes: sorted})
	}
	if c.estimator != nil && len(sorted) > 0 {
		dk := q.target.Xor(sorted[len(sorted)-1].Id)
		c.estimator.Observe(len(sorted), dk)
		if mean, _ := c.estimator.Estimate(); mean > 0 {
			metrics.SizeEstimate.Update(int64(mean))
		}
	}
	q.sink.Close()
}

// resultNodes returns the closest responded-to nodes, used to seed a
// following PUT.
func (q *getQuery) resultNodes() []*Node {
	sorted := make([]*Node, len(q.responded))
	copy(sorted, q.responded)
	sortByDistance(q.target, sorted)
	if len(sorted) > BucketSize {
		sorted = sorted[:BucketSize]
	}
	return sorted
}

// decodedResponse is the normalized shape of a reply payload, filled in by
// the wire-decoding step in rpc.go before being handed to the query that
// owns the matching transaction.
type decodedResponse struct {
	id        Id
	hasId     bool
	token     []byte
	nodes     []*Node
	peers     []*net.UDPAddr
	immutable []byte
	mutable   *MutableItem
}
