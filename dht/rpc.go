package dht

import (
	"net"
	"time"

	"github.com/mainline-dht/dhtnode/internal/dhtlog"
	"github.com/mainline-dht/dhtnode/krpc"
	"github.com/mainline-dht/dhtnode/metrics"
)

var log = dhtlog.New("dht")

// Report summarizes what one tick() pass accomplished, for instrumentation
// and logging. Actual payload delivery happens inline through each query's
// ResponseSink / reply channel as it's produced — channels already give Go
// callers the asynchronous delivery the facade's message-passing model asks
// for, so tick() doesn't need to also thread that data back out.
type Report struct {
	DoneGetQueries      []Id
	DoneFindNodeQueries []Id
	DonePutQueries       []Id
}

// Core is the single-threaded RPC engine: the routing table, transaction
// table, token manager, live queries, and the one UDP socket, all mutated
// only from the actor goroutine that calls tick().
type Core struct {
	id   Id
	cfg  Config
	sock *socket
	txns  *transactionTable
	tokens *tokenManager
	routing *RoutingTable
	estimator *sizeEstimator

	responder Responder

	getQueries map[Id]*getQuery
	putQueries map[Id]*putQuery

	publicIPVotes []*net.UDPAddr
	publicIP      *net.UDPAddr
	hasPublicPort bool
	started       time.Time
	serverPromoted bool

	cachedImmutable map[Id][]byte
	cachedMutable   map[Id]*MutableItem
}

// NewCore binds the UDP socket and returns a ready, not-yet-bootstrapped
// engine. now is the construction time used to seed token rotation and the
// server-promotion timer.
func NewCore(cfg Config, now time.Time) (*Core, error) {
	sock, err := bindSocket(cfg.Port)
	if err != nil {
		return nil, BindFailure{Err: err}
	}

	var id Id
	if cfg.ExternalIP != nil {
		var ip [4]byte
		copy(ip[:], cfg.ExternalIP.To4())
		id = RandomSecureId(ip)
	} else {
		id = RandomId()
	}

	c := &Core{
		id:              id,
		cfg:             cfg,
		sock:            sock,
		txns:            newTransactionTable(),
		tokens:          newTokenManager(now, randomSecret),
		routing:         NewRoutingTable(id),
		estimator:       newSizeEstimator(),
		responder:       cfg.Server,
		getQueries:      make(map[Id]*getQuery),
		putQueries:      make(map[Id]*putQuery),
		started:         now,
		cachedImmutable: make(map[Id][]byte),
		cachedMutable:   make(map[Id]*MutableItem),
	}
	return c, nil
}

func randomSecret() []byte {
	return RandomId().Bytes()
}

func (c *Core) Id() Id                 { return c.id }
func (c *Core) LocalAddr() *net.UDPAddr { return c.sock.localAddr() }
func (c *Core) PublicIP() *net.UDPAddr  { return c.publicIP }
func (c *Core) HasPublicPort() bool     { return c.hasPublicPort }
func (c *Core) SizeEstimate() (mean, stddev float64) { return c.estimator.Estimate() }

// Bootstrap resolves and pings every address in cfg.Bootstrap, seeding the
// routing table with whatever responds.
func (c *Core) Bootstrap(now time.Time) {
	for _, hostport := range c.cfg.Bootstrap {
		addr, err := net.ResolveUDPAddr("udp4", hostport)
		if err != nil {
			log.WithError(err).Warn("bootstrap address did not resolve")
			continue
		}
		placeholder := NewNode(Id{}, addr, now)
		c.sendFindNodeTo(placeholder, c.id, now)
	}
}

func (c *Core) sendFindNodeTo(n *Node, target Id, now time.Time) {
	tid := c.txns.allocTid()
	msg := &krpc.Message{
		T: string(tidBytes(tid)),
		Y: "q",
		Q: "find_node",
		A: &krpc.QueryArgs{Id: string(c.id[:]), Target: string(target[:])},
	}
	if c.cfg.ReadOnly {
		msg.RO = 1
	}
	b, err := krpc.Encode(msg)
	if err != nil {
		return
	}
	if err := c.sock.send(n.Addr, b); err != nil {
		return
	}
	metrics.QueriesSent.Mark(1)
	c.txns.open(tid, n.Addr, txContext{kind: reqFindNode, queryId: Id{}, node: n}, now)
}

// Get registers an iterative GET query and returns immediately; results
// stream to sink as they're produced, and sink is closed on completion.
// Any cached local value is emitted synchronously before registration, as
// the spec allows.
func (c *Core) Get(target Id, method queryMethod, seqHint *int64, sink ResponseSink) {
	var sentImmutable bool
	var sentSeq *int64
	if method == MethodGetValue {
		if v, ok := c.cachedImmutable[target]; ok {
			sink.Send(Response{Kind: RespImmutable, Immutable: v})
			sentImmutable = true
		}
		if m, ok := c.cachedMutable[target]; ok && (seqHint == nil || m.Seq > *seqHint) {
			sink.Send(Response{Kind: RespMutable, Mutable: m})
			seq := m.Seq
			sentSeq = &seq
		}
	}

	// Join semantics aren't specified for GET the way they are for PUT; a
	// second concurrent GET for the same target simply replaces the first
	// with its own lookup rather than sharing state, since GET has no
	// side effects worth de-duplicating.
	seed := c.routing.Closest(target, BucketSize*alpha)
	q := newGetQuery(target, method, seqHint, seed, sink)
	q.immutableDelivered = sentImmutable
	q.highestSeq = sentSeq
	c.getQueries[target] = q
}

// Put validates args synchronously and, if valid, registers a PUT query
// (after an internal get_peers lookup for announce_peer, or get_value lookup
// for put, populates destinations with tokens).
// reply receives exactly one PutResult.
func (c *Core) Put(kind putMethod, target Id, announce announceArgs, immutable []byte, mutable *MutableItem, reply chan<- PutResult, now time.Time) {
	var fingerprint string
	switch kind {
	case MethodPutImmutable:
		if len(immutable) > MaxValueSize {
			reply <- PutResult{Target: target, Err: PutValueTooLarge{Size: len(immutable)}}
			return
		}
		fingerprint = fingerprintImmutable(immutable)
		c.cachedImmutable[target] = immutable
	case MethodPutMutable:
		if len(mutable.Value) > MaxValueSize {
			reply <- PutResult{Target: target, Err: PutValueTooLarge{Size: len(mutable.Value)}}
			return
		}
		if !mutable.VerifySignature() {
			reply <- PutResult{Target: target, Err: PutInvalidSignature{}}
			return
		}
		fingerprint = fingerprintMutable(mutable)
		if cur, ok := c.cachedMutable[target]; !ok || mutable.Seq > cur.Seq {
			c.cachedMutable[target] = mutable
		}
	case MethodAnnouncePeer:
		fingerprint = fingerprintAnnounce(target, announce)
	}

	if existing, ok := c.putQueries[target]; ok && !existing.done {
		if existing.fingerprint == fingerprint {
			existing.joiners = append(existing.joiners, reply)
			return
		}
		reply <- PutResult{Target: target, Err: PutConcurrency{}}
		return
	}

	q := newPutQuery(target, kind, reply)
	q.fingerprint = fingerprint
	q.announce = announce
	q.immutable = immutable
	q.mutable = mutable
	c.putQueries[target] = q

	lookupMethod := MethodFindNode
	if kind == MethodAnnouncePeer {
		lookupMethod = MethodGetPeers
	} else if kind == MethodPutMutable || kind == MethodPutImmutable {
		lookupMethod = MethodGetValue
	}
	seed := c.routing.Closest(target, BucketSize*alpha)
	lookup := newGetQuery(target, lookupMethod, nil, seed, discardSink{})
	c.getQueries[putLookupKey(target)] = lookup
	lookup.onLookupDoneFor = target
}

func fingerprintAnnounce(target Id, a announceArgs) string {
	b := target.Bytes()
	b = append(b, byte(a.port>>8), byte(a.port))
	if a.impliedPort {
		b = append(b, 1)
	}
	return "ann:" + string(b)
}

// putLookupKey namespaces the synthetic FindNode/GetPeers/GetValue lookup
// a PUT launches so it doesn't collide with a caller's own GET query for
// the same target.
func putLookupKey(target Id) Id {
	var k Id
	copy(k[:], target.Xor(Id{0xff}).Bytes())
	return k
}

// discardSink is used for PUT's internal lookup, whose payloads (if any)
// are irrelevant — only its final responded set matters.
type discardSink struct{}

func (discardSink) Send(Response) bool { return true }
func (discardSink) Close()             {}

// Tick advances exactly one I/O and scheduling pass: reads any pending
// datagram, advances every live query, and expires timed-out transactions.
func (c *Core) Tick(now time.Time) Report {
	c.tokens.maybeRotate(now, randomSecret)
	c.readOne(now)

	for _, q := range c.getQueries {
		q.step(c, now)
	}

	c.expireTransactions(now)
	c.maybePromoteServer(now)

	var report Report
	for target, q := range c.getQueries {
		if !q.done {
			continue
		}
		if q.onLookupDoneFor != (Id{}) {
			c.launchPutAfterLookup(q)
			delete(c.getQueries, target)
			continue
		}
		if q.method == MethodFindNode {
			report.DoneFindNodeQueries = append(report.DoneFindNodeQueries, q.target)
		} else {
			report.DoneGetQueries = append(report.DoneGetQueries, q.target)
		}
		metrics.GetQueriesCompleted.Mark(1)
		delete(c.getQueries, target)
	}
	for target, q := range c.putQueries {
		if !q.done {
			continue
		}
		report.DonePutQueries = append(report.DonePutQueries, target)
		if q.acked {
			metrics.PutQueriesOk.Mark(1)
		} else {
			metrics.PutQueriesErr.Mark(1)
		}
		delete(c.putQueries, target)
	}
	metrics.RoutingTableSize.Update(float64(c.routing.Size()))
	return report
}

func (c *Core) launchPutAfterLookup(lookup *getQuery) {
	pq, ok := c.putQueries[lookup.onLookupDoneFor]
	if !ok {
		return
	}
	pq.start(c, lookup.resultNodes(), time.Now())
}

func (c *Core) expireTransactions(now time.Time) {
	for _, ex := range c.txns.expire(now, c.cfg.requestTimeout()) {
		switch ex.ctx.kind {
		case reqFindNode, reqGetPeers, reqGetValue:
			if q, ok := c.lookupGetQuery(ex.ctx.queryId); ok {
				delete(q.inFlight, ex.tid)
			}
		case reqAnnouncePeer, reqPut:
			if pq, ok := c.putQueries[ex.ctx.queryId]; ok {
				pq.onResponse(ex.tid, Timeout{})
			}
		}
		metrics.Timeouts.Mark(1)
	}
}

func (c *Core) maybePromoteServer(now time.Time) {
	if c.serverPromoted || c.responder != nil {
		return
	}
	if !c.hasPublicPort {
		return
	}
	if now.Sub(c.started) < serverPromotionDelay {
		return
	}
	c.responder = newDefaultResponder(c.routing)
	c.serverPromoted = true
}

// readOne processes at most one pending inbound datagram per tick, keeping
// I/O non-blocking and bounding per-tick work the way try_recv does.
func (c *Core) readOne(now time.Time) {
	b, from, err := c.sock.tryRecv()
	if err != nil || b == nil {
		return
	}
	msg, err := krpc.Decode(b)
	if err != nil {
		return
	}
	c.recordPublicIP(msg, now)

	switch msg.Y {
	case "q":
		c.handleQuery(msg, from, now)
	case "r":
		c.handleReply(msg, from, now)
	case "e":
		c.handleError(msg, from)
	}
}

func (c *Core) recordPublicIP(msg *krpc.Message, now time.Time) {
	if len(msg.IP) != 6 {
		return
	}
	addr := DecodeCompactPeerInfo([]byte(msg.IP))
	if addr == nil {
		return
	}
	c.publicIPVotes = append(c.publicIPVotes, addr)
	if len(c.publicIPVotes) > publicIPVoteWindow {
		c.publicIPVotes = c.publicIPVotes[len(c.publicIPVotes)-publicIPVoteWindow:]
	}
	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, v := range c.publicIPVotes {
		k := v.String()
		counts[k]++
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	if bestCount*2 > len(c.publicIPVotes) {
		for _, v := range c.publicIPVotes {
			if v.String() == best {
				c.publicIP = v
				c.hasPublicPort = true
				break
			}
		}
	}
}

func (c *Core) handleReply(msg *krpc.Message, from *net.UDPAddr, now time.Time) {
	tid, ok := tidFromBytes([]byte(msg.T))
	if !ok {
		return
	}
	ctx, ok := c.txns.match(tid, from)
	if !ok {
		return
	}
	if msg.R == nil {
		return
	}
	dec := decodeReply(msg.R, now)

	metrics.RepliesReceived.Mark(1)

	if dec.hasId {
		c.routing.Add(NewNode(dec.id, from, now), now)
	}
	for _, n := range dec.nodes {
		c.routing.Add(n, now)
	}

	switch ctx.kind {
	case reqFindNode, reqGetPeers, reqGetValue:
		if q, ok := c.lookupGetQuery(ctx.queryId); ok {
			q.onResponse(c, tid, from, dec, now)
		}
	case reqAnnouncePeer, reqPut:
		if pq, ok := c.putQueries[ctx.queryId]; ok {
			pq.onResponse(tid, nil)
		}
	case reqPing:
		if ctx.node != nil {
			c.routing.Add(ctx.node, now)
		}
	}
}

// lookupGetQuery finds the query object a response belongs to, including
// a PUT's internal lookup query (stored under a namespaced key).
func (c *Core) lookupGetQuery(target Id) (*getQuery, bool) {
	if q, ok := c.getQueries[target]; ok {
		return q, true
	}
	if q, ok := c.getQueries[putLookupKey(target)]; ok {
		return q, true
	}
	return nil, false
}

func (c *Core) handleError(msg *krpc.Message, from *net.UDPAddr) {
	tid, ok := tidFromBytes([]byte(msg.T))
	if !ok {
		return
	}
	ctx, ok := c.txns.match(tid, from)
	if !ok {
		return
	}
	metrics.ErrorsReceived.Mark(1)
	code, text, _ := krpc.ParseError(msg.E)
	if ctx.kind == reqFindNode || ctx.kind == reqGetPeers || ctx.kind == reqGetValue {
		if q, ok := c.lookupGetQuery(ctx.queryId); ok {
			delete(q.inFlight, tid)
		}
	}
	if ctx.kind == reqAnnouncePeer || ctx.kind == reqPut {
		if pq, ok := c.putQueries[ctx.queryId]; ok {
			pq.onResponse(tid, PutQueryError{Code: code, Text: text})
		}
	}
}

func (c *Core) handleQuery(msg *krpc.Message, from *net.UDPAddr, now time.Time) {
	metrics.QueriesReceived.Mark(1)
	if c.responder == nil {
		if c.cfg.ReadOnly {
			c.sendError(msg, from, krpc.ErrProtocol, "read-only node")
		}
		return
	}
	dispatchQuery(c, msg, from, now)
}

func (c *Core) sendError(msg *krpc.Message, from *net.UDPAddr, code int, text string) {
	reply := &krpc.Message{T: msg.T, Y: "e", E: krpc.NewError(code, text)}
	b, err := krpc.Encode(reply)
	if err != nil {
		return
	}
	c.sock.send(from, b)
}

func decodeReply(r *krpc.RetArgs, now time.Time) *decodedResponse {
	dec := &decodedResponse{}
	if len(r.Id) == IdLength {
		copy(dec.id[:], r.Id)
		dec.hasId = true
	}
	if r.Token != "" {
		dec.token = []byte(r.Token)
	}
	if r.Nodes != "" {
		dec.nodes = DecodeCompactNodeInfoList([]byte(r.Nodes), now)
	}
	for _, v := range r.Values {
		if addr := DecodeCompactPeerInfo([]byte(v)); addr != nil {
			dec.peers = append(dec.peers, addr)
		}
	}
	if r.V != "" && r.K == "" {
		dec.immutable = []byte(r.V)
	}
	if r.K != "" && r.Sig != "" && r.Seq != nil {
		var pk [32]byte
		copy(pk[:], r.K)
		dec.mutable = &MutableItem{
			PublicKey: pk[:],
			Value:     []byte(r.V),
			Seq:       *r.Seq,
			Signature: []byte(r.Sig),
		}
	}
	return dec
}

// sendGetRequest sends the correct wire method for a GET query's step and
// opens its transaction.
func (c *Core) sendGetRequest(q *getQuery, n *Node, now time.Time) (uint16, error) {
	tid := c.txns.allocTid()
	args := &krpc.QueryArgs{Id: string(c.id[:]), Target: string(q.target[:])}
	method := "find_node"
	kind := reqFindNode
	switch q.method {
	case MethodGetPeers:
		method, kind = "get_peers", reqGetPeers
		args.InfoHash = string(q.target[:])
		args.Target = ""
	case MethodGetValue:
		method, kind = "get_value", reqGetValue
		if q.seqHint != nil {
			args.Seq = q.seqHint
		}
	}
	msg := &krpc.Message{T: string(tidBytes(tid)), Y: "q", Q: method, A: args}
	if c.cfg.ReadOnly {
		msg.RO = 1
	}
	b, err := krpc.Encode(msg)
	if err != nil {
		return 0, err
	}
	if err := c.sock.send(n.Addr, b); err != nil {
		return 0, err
	}
	metrics.QueriesSent.Mark(1)
	queryKey := q.target
	if q.onLookupDoneFor != (Id{}) {
		queryKey = putLookupKey(q.onLookupDoneFor)
	}
	c.txns.open(tid, n.Addr, txContext{kind: kind, queryId: queryKey, node: n}, now)
	return tid, nil
}

// sendPutRequest sends the correct wire method for a PUT query's
// destination and opens its transaction.
func (c *Core) sendPutRequest(q *putQuery, n *Node, now time.Time) (uint16, error) {
	tid := c.txns.allocTid()
	args := &krpc.QueryArgs{Id: string(c.id[:]), Token: string(n.Token)}
	method := "announce_peer"
	kind := reqAnnouncePeer
	switch q.method {
	case MethodAnnouncePeer:
		args.InfoHash = string(q.target[:])
		args.Port = q.announce.port
		if q.announce.impliedPort {
			args.ImpliedPort = 1
		}
	case MethodPutImmutable:
		method, kind = "put", reqPut
		args.V = string(q.immutable)
	case MethodPutMutable:
		method, kind = "put", reqPut
		args.V = string(q.mutable.Value)
		args.K = string(q.mutable.PublicKey)
		args.Sig = string(q.mutable.Signature)
		seq := q.mutable.Seq
		args.Seq = &seq
		if len(q.mutable.Salt) > 0 {
			args.Salt = string(q.mutable.Salt)
		}
		if q.mutable.Cas != nil {
			args.Cas = q.mutable.Cas
		}
	}
	msg := &krpc.Message{T: string(tidBytes(tid)), Y: "q", Q: method, A: args}
	if c.cfg.ReadOnly {
		msg.RO = 1
	}
	b, err := krpc.Encode(msg)
	if err != nil {
		return 0, err
	}
	if err := c.sock.send(n.Addr, b); err != nil {
		return 0, err
	}
	metrics.QueriesSent.Mark(1)
	c.txns.open(tid, n.Addr, txContext{kind: kind, queryId: q.target, node: n}, now)
	return tid, nil
}

// Close releases the socket, cancelling any further I/O.
func (c *Core) Close() error {
	return c.sock.close()
}
