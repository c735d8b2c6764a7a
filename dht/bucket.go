package dht

import (
	"time"

	"github.com/mainline-dht/dhtnode/distip"
)

// BucketSize is K, the maximum live entries a bucket holds.
const BucketSize = 20

// maxReplacements bounds the stand-by list kept for a full bucket, mirroring
// the teacher routing table's replacement cache sized well below bucketSize.
const maxReplacements = 10

// bucket holds an ordered list of nodes covering a contiguous XOR-distance
// range, LRU-at-head like the teacher's discover.bucket. A full bucket keeps
// a small replacement list to fall back on when a live entry goes stale.
type bucket struct {
	entries      []*Node
	replacements []*Node
	ips          distip.DistinctNetSet
}

func newBucket() *bucket {
	return &bucket{ips: distip.DistinctNetSet{Subnet: 24, Limit: BucketSize}}
}

func (b *bucket) len() int { return len(b.entries) }

func (b *bucket) find(id Id) *Node {
	for _, n := range b.entries {
		if n.Id == id {
			return n
		}
	}
	return nil
}

// bump moves an existing entry to the head (most-recently-seen) position.
func (b *bucket) bump(n *Node, now time.Time) {
	n.Touch(now)
	for i, e := range b.entries {
		if e.Id == n.Id {
			copy(b.entries[1:i+1], b.entries[:i])
			b.entries[0] = e
			return
		}
	}
}

// push inserts a new node at the head. Caller must ensure the bucket is not
// full and the node is not already present.
func (b *bucket) push(n *Node) bool {
	if !b.ips.Add(n.Addr.IP) {
		return false
	}
	b.entries = append(b.entries, nil)
	copy(b.entries[1:], b.entries)
	b.entries[0] = n
	return true
}

// addReplacement remembers n as a stand-by candidate for this bucket,
// evicting the oldest replacement if the list is already full.
func (b *bucket) addReplacement(n *Node) {
	for _, e := range b.replacements {
		if e.Id == n.Id {
			return
		}
	}
	if len(b.replacements) >= maxReplacements {
		b.replacements = b.replacements[1:]
	}
	b.replacements = append(b.replacements, n)
}

// popReplacement removes and returns the most recently added replacement,
// or nil if none are available.
func (b *bucket) popReplacement() *Node {
	if len(b.replacements) == 0 {
		return nil
	}
	n := b.replacements[len(b.replacements)-1]
	b.replacements = b.replacements[:len(b.replacements)-1]
	return n
}

// remove deletes a node by id, freeing its slot in the subnet tracker.
func (b *bucket) remove(id Id) bool {
	for i, e := range b.entries {
		if e.Id == id {
			b.ips.Remove(e.Addr.IP)
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// replaceStalest evicts the least-recently-seen entry (tail of the list) in
// favor of a waiting replacement; RoutingTable.ReplaceStalest exposes it.
func (b *bucket) replaceStalest() {
	if len(b.entries) == 0 {
		return
	}
	r := b.popReplacement()
	if r == nil {
		return
	}
	stalest := b.entries[len(b.entries)-1]
	b.ips.Remove(stalest.Addr.IP)
	b.entries[len(b.entries)-1] = r
	b.ips.Add(r.Addr.IP)
}

// stalest returns the least-recently-seen entry without removing it.
func (b *bucket) stalest() *Node {
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[len(b.entries)-1]
}
