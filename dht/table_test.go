package dht

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func nodeAt(i int) *Node {
	id := RandomId()
	addr := &net.UDPAddr{IP: net.IPv4(10, 0, byte(i/256), byte(i%256)), Port: 6881}
	return NewNode(id, addr, time.Now())
}

func TestRoutingTableClosestOrdering(t *testing.T) {
	local := RandomId()
	table := NewRoutingTable(local)
	now := time.Now()
	for i := 0; i < 50; i++ {
		table.Add(nodeAt(i), now)
	}
	target := RandomId()
	closest := table.Closest(target, BucketSize)
	require.LessOrEqual(t, len(closest), BucketSize)
	for i := 1; i < len(closest); i++ {
		prevDist := target.Xor(closest[i-1].Id)
		curDist := target.Xor(closest[i].Id)
		require.False(t, Less(target, closest[i].Id, closest[i-1].Id),
			"closest() must be non-decreasing by distance: %v then %v", prevDist, curDist)
	}
}

func TestRoutingTableAddAndContains(t *testing.T) {
	local := RandomId()
	table := NewRoutingTable(local)
	now := time.Now()
	n := nodeAt(1)
	require.True(t, table.Add(n, now))
	require.True(t, table.Contains(n.Id))
	require.Equal(t, 1, table.Size())

	require.True(t, table.Remove(n.Id))
	require.False(t, table.Contains(n.Id))
}

func TestRoutingTableSplitsOnlyForLocalBucket(t *testing.T) {
	local := RandomId()
	table := NewRoutingTable(local)
	now := time.Now()
	for i := 0; i < BucketSize*4; i++ {
		table.Add(nodeAt(i), now)
	}
	require.Greater(t, len(table.buckets), 1)
	require.LessOrEqual(t, table.Size(), BucketSize*len(table.buckets))
}
