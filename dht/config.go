package dht

import (
	"net"
	"time"
)

// DefaultRequestTimeout is how long a transaction waits for a reply before
// it is expired and its query continues without that candidate.
const DefaultRequestTimeout = 2 * time.Second

// serverPromotionDelay is how long the node waits, once it believes it has
// a reachable public port, before attaching the default responder.
const serverPromotionDelay = 15 * time.Minute

// publicIPVoteWindow is how many recent ip-field observations are kept for
// the majority vote that sets PublicIP/HasPublicPort.
const publicIPVoteWindow = 20

// Config parametrizes the construction of an RPC Core / Actor Facade.
type Config struct {
	// Bootstrap lists host:port addresses resolved and pinged at startup.
	Bootstrap []string

	// Port is the UDP port to bind. Zero picks an ephemeral port.
	Port int

	// RequestTimeout overrides DefaultRequestTimeout when non-zero.
	RequestTimeout time.Duration

	// Server, if non-nil, is attached as the Responder from construction
	// instead of waiting for public-port self-detection.
	Server Responder

	// ExternalIP, if set, constrains the generated node id to be BEP-42
	// valid for this address from the start.
	ExternalIP net.IP

	// ReadOnly marks this node BEP-43 read-only: it sets the "ro" flag on
	// outgoing requests and, while no Responder is attached, answers inbound
	// requests with a protocol error. An attached Responder (from Server or
	// from self-promotion) still serves every request, writes included.
	ReadOnly bool
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return DefaultRequestTimeout
}
