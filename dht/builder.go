package dht

import (
	"net"
	"time"
)

// Builder assembles a Config fluently before constructing a Facade, the
// same shape as the reference DhtBuilder: cheap to hold around and mutate
// before the one call that actually binds a socket.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder with spec defaults (ephemeral port, no
// bootstrap, read-write, no responder).
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Bootstrap(addrs ...string) *Builder {
	b.cfg.Bootstrap = append(b.cfg.Bootstrap, addrs...)
	return b
}

func (b *Builder) Port(port int) *Builder {
	b.cfg.Port = port
	return b
}

func (b *Builder) RequestTimeout(d time.Duration) *Builder {
	b.cfg.RequestTimeout = d
	return b
}

func (b *Builder) Server(r Responder) *Builder {
	b.cfg.Server = r
	return b
}

func (b *Builder) ExternalIP(ip net.IP) *Builder {
	b.cfg.ExternalIP = ip
	return b
}

func (b *Builder) ReadOnly(ro bool) *Builder {
	b.cfg.ReadOnly = ro
	return b
}

// Build binds the UDP socket and starts the actor goroutine.
func (b *Builder) Build() (*Facade, error) {
	return New(b.cfg)
}

// Config returns the assembled configuration without building, useful for
// tests that want to construct a Core directly.
func (b *Builder) Config() Config {
	return b.cfg
}
