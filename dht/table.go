package dht

import (
	"sort"
	"time"
)

// RoutingTable is a trie of buckets rooted at the local id, CPL-indexed the
// way the kbucket table in the pack organizes entries: bucket i holds nodes
// whose common-prefix-length with the local id is exactly i, except for the
// last bucket, which holds everything with CPL >= its index and is the only
// bucket ever eligible to split (it is the one covering the local id).
type RoutingTable struct {
	localId Id
	buckets []*bucket
}

// NewRoutingTable creates an empty table for the given local identifier.
func NewRoutingTable(localId Id) *RoutingTable {
	return &RoutingTable{localId: localId, buckets: []*bucket{newBucket()}}
}

func (t *RoutingTable) bucketIndex(id Id) int {
	cpl := id.CommonPrefixLen(t.localId)
	if cpl >= len(t.buckets) {
		return len(t.buckets) - 1
	}
	return cpl
}

// Add inserts or refreshes a node. Returns true if the node is now tracked
// (inserted or bumped), false if the covering bucket was full and could not
// split — the node is remembered as a replacement candidate instead — and
// also false, without a replacement entry, if the bucket's per-subnet limit
// rejects the node's address.
func (t *RoutingTable) Add(n *Node, now time.Time) bool {
	if n.Id == t.localId {
		return false
	}
	idx := t.bucketIndex(n.Id)
	b := t.buckets[idx]

	if existing := b.find(n.Id); existing != nil {
		existing.Addr = n.Addr
		b.bump(existing, now)
		return true
	}

	if b.len() < BucketSize {
		return b.push(n)
	}

	if idx == len(t.buckets)-1 && len(t.buckets) < IdLength*8 {
		t.split(idx)
		return t.Add(n, now)
	}

	b.addReplacement(n)
	return false
}

// split divides the last bucket (the only one that may cover the local id)
// into two: entries whose CPL is exactly idx stay, entries whose CPL is
// greater move into a freshly appended bucket.
func (t *RoutingTable) split(idx int) {
	old := t.buckets[idx]
	next := newBucket()

	kept := old.entries[:0:0]
	var moved []*Node
	for _, n := range old.entries {
		if n.Id.CommonPrefixLen(t.localId) > idx {
			old.ips.Remove(n.Addr.IP)
			moved = append(moved, n)
		} else {
			kept = append(kept, n)
		}
	}
	// push inserts at the head, so push in reverse to keep LRU-at-head order.
	for i := len(moved) - 1; i >= 0; i-- {
		next.push(moved[i])
	}
	old.entries = kept
	t.buckets = append(t.buckets, next)
}

// Closest returns up to n nodes ordered by ascending XOR distance to target.
func (t *RoutingTable) Closest(target Id, n int) []*Node {
	var all []*Node
	for _, b := range t.buckets {
		all = append(all, b.entries...)
	}
	sort.Slice(all, func(i, j int) bool {
		return Less(target, all[i].Id, all[j].Id)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Contains reports whether id is currently tracked.
func (t *RoutingTable) Contains(id Id) bool {
	idx := t.bucketIndex(id)
	return t.buckets[idx].find(id) != nil
}

// Get returns the tracked node for id, or nil.
func (t *RoutingTable) Get(id Id) *Node {
	idx := t.bucketIndex(id)
	return t.buckets[idx].find(id)
}

// Remove deletes a node from the table, returning whether it was present.
func (t *RoutingTable) Remove(id Id) bool {
	idx := t.bucketIndex(id)
	return t.buckets[idx].remove(id)
}

// Size returns the total number of tracked nodes.
func (t *RoutingTable) Size() int {
	n := 0
	for _, b := range t.buckets {
		n += b.len()
	}
	return n
}

// Iterate calls fn for every tracked node. There is no early exit: iteration
// always runs to completion.
func (t *RoutingTable) Iterate(fn func(*Node)) {
	for _, b := range t.buckets {
		for _, n := range b.entries {
			fn(n)
		}
	}
}

// StalestIn returns the least-recently-seen node sharing id's bucket. The
// table itself sends no pings and never calls it.
func (t *RoutingTable) StalestIn(id Id) *Node {
	idx := t.bucketIndex(id)
	return t.buckets[idx].stalest()
}

// ReplaceStalest evicts the stalest node in id's bucket in favor of a
// waiting replacement. Nothing in this package calls it.
func (t *RoutingTable) ReplaceStalest(id Id) {
	idx := t.bucketIndex(id)
	t.buckets[idx].replaceStalest()
}
