package dht

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// waitFor polls fn until it returns true or the deadline elapses, the way
// integration tests against a real UDP testnet have to since the actor
// loop advances on its own schedule.
func waitFor(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestScenarioImmutableRoundTrip(t *testing.T) {
	net, err := NewTestnet(3)
	require.NoError(t, err)
	defer net.Shutdown()

	a, b := net.Nodes[0], net.Nodes[1]

	result := <-a.PutImmutable([]byte("Hello World!"))
	require.NoError(t, result.Err)
	require.Equal(t, "e5f96f6f38320f0f33959cb4d3d656452117aadb", result.Target.String())

	sink := NewChanSink(4)
	b.GetImmutable(result.Target, sink)

	var got []byte
	waitFor(t, 5*time.Second, func() bool {
		select {
		case r, ok := <-sink.C():
			if !ok {
				return false
			}
			if r.Kind == RespImmutable {
				got = r.Immutable
				return true
			}
		default:
		}
		return false
	})
	require.Equal(t, []byte("Hello World!"), got)
}

func TestScenarioRepeatedPutIdempotence(t *testing.T) {
	net, err := NewTestnet(1)
	require.NoError(t, err)
	defer net.Shutdown()

	// A lone node has no lookup responders, so each put fails with
	// NoClosestNodes; both still report the same target.
	node := net.Nodes[0]
	r1 := <-node.PutImmutable([]byte{1, 2, 3})
	r2 := <-node.PutImmutable([]byte{1, 2, 3})
	require.IsType(t, NoClosestNodes{}, r1.Err)
	require.IsType(t, NoClosestNodes{}, r2.Err)
	require.Equal(t, r1.Target, r2.Target)
}

func TestScenarioEmptyNetworkFindNode(t *testing.T) {
	net, err := NewTestnet(1)
	require.NoError(t, err)
	defer net.Shutdown()

	sink := NewChanSink(1)
	net.Nodes[0].FindNode(RandomId(), sink)

	waitFor(t, 2*time.Second, func() bool {
		select {
		case _, ok := <-sink.C():
			return !ok || true
		default:
			return false
		}
	})
}

func TestScenarioAnnounceAndGetPeers(t *testing.T) {
	net, err := NewTestnet(3)
	require.NoError(t, err)
	defer net.Shutdown()

	a, b := net.Nodes[0], net.Nodes[1]
	infoHash := RandomId()

	result := <-a.AnnouncePeer(infoHash, 6881, false)
	require.NoError(t, result.Err)

	sink := NewChanSink(4)
	b.GetPeers(infoHash, sink)

	var gotPeer bool
	waitFor(t, 5*time.Second, func() bool {
		select {
		case r, ok := <-sink.C():
			if !ok {
				return false
			}
			if r.Kind == RespPeers && len(r.Peers) > 0 {
				gotPeer = true
				return true
			}
		default:
		}
		return false
	})
	require.True(t, gotPeer)
}

func TestScenarioMutableRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	net, err := NewTestnet(3)
	require.NoError(t, err)
	defer net.Shutdown()

	a, b := net.Nodes[0], net.Nodes[1]

	item := &MutableItem{PublicKey: pub, Value: []byte("v1"), Seq: 1}
	item.Sign(priv)
	r1 := <-a.PutMutable(item)
	require.NoError(t, r1.Err)

	sink := NewChanSink(4)
	b.GetMutable(item.Target(), nil, sink)

	var got *MutableItem
	waitFor(t, 5*time.Second, func() bool {
		select {
		case r, ok := <-sink.C():
			if !ok {
				return false
			}
			if r.Kind == RespMutable {
				got = r.Mutable
				return true
			}
		default:
		}
		return false
	})
	require.Equal(t, []byte("v1"), got.Value)
	require.Equal(t, int64(1), got.Seq)
}

func TestScenarioMutableSuppressedBySeqHint(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	net, err := NewTestnet(3)
	require.NoError(t, err)
	defer net.Shutdown()

	a, b := net.Nodes[0], net.Nodes[1]

	item := &MutableItem{PublicKey: pub, Value: []byte("v1"), Seq: 1}
	item.Sign(priv)
	r1 := <-a.PutMutable(item)
	require.NoError(t, r1.Err)

	hint := int64(1)
	sink := NewChanSink(4)
	b.GetMutable(item.Target(), &hint, sink)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case r, ok := <-sink.C():
			if !ok {
				return
			}
			require.NotEqual(t, RespMutable, r.Kind, "seq_hint should have suppressed a no-newer-value reply")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func TestScenarioDoubleBindFails(t *testing.T) {
	f1, err := NewBuilder().Build()
	require.NoError(t, err)
	defer f1.Shutdown()

	port := f1.GetInfo().LocalAddr.Port

	_, err = NewBuilder().Port(port).Build()
	require.Error(t, err)
	require.IsType(t, BindFailure{}, err)
}
