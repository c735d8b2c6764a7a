package dht

import (
	"net"
	"time"
)

// Info is a point-in-time snapshot of node state, returned by Facade.GetInfo.
type Info struct {
	Id            Id
	LocalAddr     *net.UDPAddr
	PublicIP      *net.UDPAddr
	HasPublicPort bool
	SizeMean      float64
	SizeStdDev    float64
}

type checkMsg struct{ reply chan<- error }
type infoMsg struct{ reply chan<- Info }
type getMsg struct {
	target  Id
	method  queryMethod
	seqHint *int64
	sink    ResponseSink
}
type putMsg struct {
	kind      putMethod
	target    Id
	announce  announceArgs
	immutable []byte
	mutable   *MutableItem
	reply     chan<- PutResult
}
type shutdownMsg struct{ reply chan<- struct{} }

// actorQueueDepth approximates the "unbounded message queue" the spec
// describes; Go channels aren't unbounded, so this is sized generously
// above any realistic burst of facade calls between two tick passes.
const actorQueueDepth = 4096

// tickInterval bounds how long the actor loop sleeps between ticks when no
// message is waiting, per 4.8's "≤15ms" requirement.
const tickInterval = 10 * time.Millisecond

// Facade is the thread-safe, cloneable handle callers use to talk to the
// single-threaded RPC Core running on its own actor goroutine.
type Facade struct {
	msgs   chan interface{}
	closed chan struct{}
}

// run is the actor goroutine body: apply at most one pending message to the
// core, call Tick exactly once per iteration, then wait up to tickInterval
// for the next message (applying it if one arrives).
func run(core *Core, msgs chan interface{}, closed chan struct{}) {
	defer close(closed)
	defer core.Close()

	core.Bootstrap(time.Now())

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if shutdown := dispatchActorMsg(core, m); shutdown {
				return
			}
		default:
		}

		now := time.Now()
		core.Tick(now)

		select {
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if shutdown := dispatchActorMsg(core, m); shutdown {
				return
			}
		case <-time.After(tickInterval):
		}
	}
}

// dispatchActorMsg applies one facade message to the core. It returns true
// iff the actor should exit (a Shutdown message was processed).
func dispatchActorMsg(core *Core, m interface{}) bool {
	now := time.Now()
	switch msg := m.(type) {
	case checkMsg:
		msg.reply <- nil
	case infoMsg:
		mean, stddev := core.SizeEstimate()
		msg.reply <- Info{
			Id:            core.Id(),
			LocalAddr:     core.LocalAddr(),
			PublicIP:      core.PublicIP(),
			HasPublicPort: core.HasPublicPort(),
			SizeMean:      mean,
			SizeStdDev:    stddev,
		}
	case getMsg:
		core.Get(msg.target, msg.method, msg.seqHint, msg.sink)
	case putMsg:
		core.Put(msg.kind, msg.target, msg.announce, msg.immutable, msg.mutable, msg.reply, now)
	case shutdownMsg:
		msg.reply <- struct{}{}
		return true
	}
	return false
}

// New constructs a Core, starts its actor goroutine, and returns the
// Facade handle. It returns synchronously once the socket is bound (not
// once bootstrap completes), matching 4.7's Check semantics.
func New(cfg Config) (*Facade, error) {
	core, err := NewCore(cfg, time.Now())
	if err != nil {
		return nil, err
	}
	f := &Facade{
		msgs:   make(chan interface{}, actorQueueDepth),
		closed: make(chan struct{}),
	}
	go run(core, f.msgs, f.closed)
	return f, nil
}

// send enqueues m for the actor. It fails fast with Shutdown{} once the
// actor has exited, instead of enqueuing into a buffer nobody will ever
// drain and leaving the caller's reply channel waiting forever.
func (f *Facade) send(m interface{}) error {
	select {
	case <-f.closed:
		return Shutdown{}
	default:
	}
	select {
	case f.msgs <- m:
		return nil
	case <-f.closed:
		return Shutdown{}
	}
}

// Check reports whether the actor is alive and its socket is bound.
func (f *Facade) Check() error {
	reply := make(chan error, 1)
	if err := f.send(checkMsg{reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// GetInfo returns a snapshot of node state.
func (f *Facade) GetInfo() Info {
	reply := make(chan Info, 1)
	if err := f.send(infoMsg{reply: reply}); err != nil {
		return Info{}
	}
	return <-reply
}

// FindNode runs an iterative FindNode lookup, delivering the final
// closest-K list to sink.
func (f *Facade) FindNode(target Id, sink ResponseSink) {
	f.send(getMsg{target: target, method: MethodFindNode, sink: sink})
}

// GetPeers runs an iterative get_peers lookup for an infohash, streaming
// peer lists to sink as they're found.
func (f *Facade) GetPeers(infoHash Id, sink ResponseSink) {
	f.send(getMsg{target: infoHash, method: MethodGetPeers, sink: sink})
}

// GetImmutable runs an iterative get_value lookup for an immutable target,
// delivering at most one value to sink.
func (f *Facade) GetImmutable(target Id, sink ResponseSink) {
	f.send(getMsg{target: target, method: MethodGetValue, sink: sink})
}

// GetMutable runs an iterative get_value lookup for a mutable target,
// streaming items with seq greater than seqHint (if given) to sink.
func (f *Facade) GetMutable(target Id, seqHint *int64, sink ResponseSink) {
	f.send(getMsg{target: target, method: MethodGetValue, seqHint: seqHint, sink: sink})
}

// AnnouncePeer publishes this node as a peer for infoHash on the given
// port, returning the single outcome on the returned channel.
func (f *Facade) AnnouncePeer(infoHash Id, port int, impliedPort bool) <-chan PutResult {
	reply := make(chan PutResult, 1)
	err := f.send(putMsg{
		kind:     MethodAnnouncePeer,
		target:   infoHash,
		announce: announceArgs{port: port, impliedPort: impliedPort},
		reply:    reply,
	})
	if err != nil {
		reply <- PutResult{Target: infoHash, Err: err}
	}
	return reply
}

// PutImmutable stores v under SHA1(v), returning the single outcome.
func (f *Facade) PutImmutable(v []byte) <-chan PutResult {
	target := ImmutableTarget(v)
	reply := make(chan PutResult, 1)
	err := f.send(putMsg{kind: MethodPutImmutable, target: target, immutable: v, reply: reply})
	if err != nil {
		reply <- PutResult{Target: target, Err: err}
	}
	return reply
}

// PutMutable stores a signed mutable item, returning the single outcome.
func (f *Facade) PutMutable(item *MutableItem) <-chan PutResult {
	target := item.Target()
	reply := make(chan PutResult, 1)
	err := f.send(putMsg{kind: MethodPutMutable, target: target, mutable: item, reply: reply})
	if err != nil {
		reply <- PutResult{Target: target, Err: err}
	}
	return reply
}

// Shutdown cancels all live queries, closes the socket, and stops the
// actor. It blocks until the actor has fully exited.
func (f *Facade) Shutdown() {
	reply := make(chan struct{}, 1)
	if f.send(shutdownMsg{reply: reply}) == nil {
		<-reply
	}
}
