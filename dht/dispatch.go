package dht

import (
	"net"
	"time"

	"github.com/mainline-dht/dhtnode/krpc"
)

// dispatchQuery decodes one inbound request's arguments, forwards it to the
// attached Responder, and writes back a reply or error on the same
// transaction id — the inbound half of 4.6.3.
func dispatchQuery(c *Core, msg *krpc.Message, from *net.UDPAddr, now time.Time) {
	if msg.A == nil || len(msg.A.Id) != IdLength {
		c.sendError(msg, from, krpc.ErrProtocol, "missing arguments")
		return
	}
	var remoteId Id
	copy(remoteId[:], msg.A.Id)
	c.routing.Add(NewNode(remoteId, from, now), now)

	switch msg.Q {
	case "ping":
		if err := c.responder.OnPing(from, remoteId); err != nil {
			c.sendServerError(msg, from, err)
			return
		}
		c.replyId(msg, from)

	case "find_node":
		if len(msg.A.Target) != IdLength {
			c.sendError(msg, from, krpc.ErrProtocol, "bad target")
			return
		}
		var target Id
		copy(target[:], msg.A.Target)
		nodes, err := c.responder.OnFindNode(from, remoteId, target)
		if err != nil {
			c.sendServerError(msg, from, err)
			return
		}
		if len(nodes) == 0 {
			nodes = c.routing.Closest(target, BucketSize)
		}
		c.replyNodes(msg, from, nodes)

	case "get_peers":
		if len(msg.A.InfoHash) != IdLength {
			c.sendError(msg, from, krpc.ErrProtocol, "bad info_hash")
			return
		}
		var ih Id
		copy(ih[:], msg.A.InfoHash)
		token := c.tokens.Issue(from)
		nodes, peers, err := c.responder.OnGetPeers(from, remoteId, ih, token)
		if err != nil {
			c.sendServerError(msg, from, err)
			return
		}
		r := &krpc.RetArgs{Id: string(c.id[:]), Token: string(token)}
		if len(peers) > 0 {
			for _, p := range peers {
				r.Values = append(r.Values, string(CompactPeerInfo(p)))
			}
		} else if len(nodes) > 0 {
			r.Nodes = joinCompactNodes(nodes)
		} else {
			r.Nodes = joinCompactNodes(c.routing.Closest(ih, BucketSize))
		}
		c.replyArgs(msg, from, r)

	case "announce_peer":
		if len(msg.A.InfoHash) != IdLength || !c.tokens.Valid(from, []byte(msg.A.Token)) {
			c.sendError(msg, from, krpc.ErrProtocol, "bad token")
			return
		}
		var ih Id
		copy(ih[:], msg.A.InfoHash)
		port := msg.A.Port
		implied := msg.A.ImpliedPort == 1
		if implied {
			port = from.Port
		}
		if err := c.responder.OnAnnouncePeer(from, remoteId, ih, port, implied, []byte(msg.A.Token)); err != nil {
			c.sendServerError(msg, from, err)
			return
		}
		c.replyId(msg, from)

	case "get_value":
		if len(msg.A.Target) != IdLength {
			c.sendError(msg, from, krpc.ErrProtocol, "bad target")
			return
		}
		var target Id
		copy(target[:], msg.A.Target)
		token := c.tokens.Issue(from)
		res, err := c.responder.OnGetValue(from, remoteId, target, msg.A.Seq, token)
		if err != nil {
			c.sendServerError(msg, from, err)
			return
		}
		r := &krpc.RetArgs{Id: string(c.id[:]), Token: string(token)}
		if res != nil {
			if res.Immutable != nil {
				r.V = string(res.Immutable)
			}
			if res.Mutable != nil {
				r.V = string(res.Mutable.Value)
				r.K = string(res.Mutable.PublicKey)
				r.Sig = string(res.Mutable.Signature)
				seq := res.Mutable.Seq
				r.Seq = &seq
			}
		}
		if res == nil || (res.Immutable == nil && res.Mutable == nil) {
			r.Nodes = joinCompactNodes(c.routing.Closest(target, BucketSize))
		}
		c.replyArgs(msg, from, r)

	case "put":
		if !c.tokens.Valid(from, []byte(msg.A.Token)) {
			c.sendError(msg, from, krpc.ErrProtocol, "bad token")
			return
		}
		req := decodePutRequest(msg.A)
		if err := c.responder.OnPut(from, remoteId, req, []byte(msg.A.Token)); err != nil {
			c.sendServerError(msg, from, err)
			return
		}
		c.replyId(msg, from)

	default:
		c.sendError(msg, from, krpc.ErrMethodUnknown, "unknown method")
	}
}

func decodePutRequest(a *krpc.QueryArgs) PutRequest {
	if a.K == "" {
		return PutRequest{Immutable: []byte(a.V)}
	}
	pk := make([]byte, 32)
	copy(pk, a.K)
	item := &MutableItem{
		PublicKey: pk,
		Value:     []byte(a.V),
		Signature: []byte(a.Sig),
		Salt:      []byte(a.Salt),
	}
	if a.Seq != nil {
		item.Seq = *a.Seq
	}
	if a.Cas != nil {
		item.Cas = a.Cas
	}
	return PutRequest{Mutable: item}
}

func joinCompactNodes(nodes []*Node) string {
	buf := make([]byte, 0, 26*len(nodes))
	for _, n := range nodes {
		buf = append(buf, n.CompactNodeInfo()...)
	}
	return string(buf)
}

func (c *Core) replyId(msg *krpc.Message, from *net.UDPAddr) {
	c.replyArgs(msg, from, &krpc.RetArgs{Id: string(c.id[:])})
}

func (c *Core) replyNodes(msg *krpc.Message, from *net.UDPAddr, nodes []*Node) {
	c.replyArgs(msg, from, &krpc.RetArgs{Id: string(c.id[:]), Nodes: joinCompactNodes(nodes)})
}

func (c *Core) replyArgs(msg *krpc.Message, from *net.UDPAddr, r *krpc.RetArgs) {
	reply := &krpc.Message{T: msg.T, Y: "r", R: r, IP: string(CompactPeerInfo(from))}
	b, err := krpc.Encode(reply)
	if err != nil {
		return
	}
	c.sock.send(from, b)
}

func (c *Core) sendServerError(msg *krpc.Message, from *net.UDPAddr, err error) {
	code := krpc.ErrServer
	switch err.(type) {
	case ResponderInvalidSignature:
		code = krpc.ErrInvalidSignature
	case ResponderSeqTooOld:
		code = krpc.ErrSeqLessThanCurrent
	case ResponderCASMismatch:
		code = krpc.ErrCASMismatch
	}
	c.sendError(msg, from, code, err.Error())
}
