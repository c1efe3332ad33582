package socket

import (
	"time"

	"go.uber.org/zap"

	"github.com/strand-protocol/strandsock/internal/engine"
	"github.com/strand-protocol/strandsock/pkg/auth"
	"github.com/strand-protocol/strandsock/pkg/msg"
	"github.com/strand-protocol/strandsock/pkg/sockcfg"
)

// Gather is the collecting half of the scatter-gather pipeline. It
// fair-queues messages from every connected scatter into one stream. A
// Gather is safe for concurrent use.
type Gather struct {
	base
}

// NewGather returns an unbound gather on the global session with default
// options.
func NewGather() (*Gather, error) {
	return NewGatherBuilder().Build()
}

// NewGatherFromConfig builds a gather from a declarative config section.
func NewGatherFromConfig(cfg *sockcfg.GatherConfig) (*Gather, error) {
	r, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	b, err := newBase(engine.GatherKind, r, buildOptions{})
	if err != nil {
		return nil, err
	}
	return &Gather{base: *b}, nil
}

// Recv returns the next pipeline message, waiting per the configured
// recv timeout.
func (g *Gather) Recv() (msg.Message, error) {
	return g.recv()
}

// TryRecv is Recv without waiting.
func (g *Gather) TryRecv() (msg.Message, error) {
	return g.tryRecv()
}

// RecvTimeout is Recv bounded by an explicit timeout. A zero timeout
// never blocks.
func (g *Gather) RecvTimeout(timeout time.Duration) (msg.Message, error) {
	return g.recvWithin(timeout)
}

// GatherBuilder assembles a Gather. Start from NewGatherBuilder.
type GatherBuilder struct {
	cfg sockcfg.GatherConfig
	bo  buildOptions
}

// NewGatherBuilder returns a builder with default options.
func NewGatherBuilder() *GatherBuilder {
	return &GatherBuilder{}
}

// Connect adds endpoints the gather dials in the background.
func (b *GatherBuilder) Connect(addrs ...string) *GatherBuilder {
	b.cfg.Connect = append(b.cfg.Connect, addrs...)
	return b
}

// Bind adds endpoints the gather listens on.
func (b *GatherBuilder) Bind(addrs ...string) *GatherBuilder {
	b.cfg.Bind = append(b.cfg.Bind, addrs...)
	return b
}

// Backlog caps connections accepted but not yet handshaked.
func (b *GatherBuilder) Backlog(n int) *GatherBuilder {
	b.cfg.Backlog = n
	return b
}

// ConnectTimeout bounds each dial and handshake attempt.
func (b *GatherBuilder) ConnectTimeout(d time.Duration) *GatherBuilder {
	b.cfg.ConnectTimeout = sockcfg.Duration(d)
	return b
}

// Heartbeat enables liveness pings every interval.
func (b *GatherBuilder) Heartbeat(interval time.Duration) *GatherBuilder {
	b.cfg.HeartbeatInterval = sockcfg.Duration(interval)
	return b
}

// HeartbeatTimeout sets how long after an unanswered ping the connection
// is considered dead. Defaults to the heartbeat interval.
func (b *GatherBuilder) HeartbeatTimeout(d time.Duration) *GatherBuilder {
	b.cfg.HeartbeatTimeout = sockcfg.Duration(d)
	return b
}

// HeartbeatTTL bounds how long reconnection is attempted to a peer that
// never comes back.
func (b *GatherBuilder) HeartbeatTTL(d time.Duration) *GatherBuilder {
	b.cfg.HeartbeatTTL = sockcfg.Duration(d)
	return b
}

// RecvHighWaterMark caps the incoming buffer.
func (b *GatherBuilder) RecvHighWaterMark(n int) *GatherBuilder {
	b.cfg.RecvHighWaterMark = n
	return b
}

// RecvTimeout sets the default wait for Recv. Zero means never block.
func (b *GatherBuilder) RecvTimeout(d time.Duration) *GatherBuilder {
	t := sockcfg.Duration(d)
	b.cfg.RecvTimeout = &t
	return b
}

// Mechanism sets the security mechanism.
func (b *GatherBuilder) Mechanism(m auth.Mechanism) *GatherBuilder {
	b.bo.mech = &m
	return b
}

// Logger attaches a structured logger to the socket's background
// machinery.
func (b *GatherBuilder) Logger(l *zap.Logger) *GatherBuilder {
	b.bo.logger = l
	return b
}

// Session attaches the socket to sess instead of the global session.
func (b *GatherBuilder) Session(sess *Session) *GatherBuilder {
	b.bo.sess = sess
	return b
}

// Build validates the configuration and constructs the gather.
func (b *GatherBuilder) Build() (*Gather, error) {
	r, err := b.cfg.Resolve()
	if err != nil {
		return nil, err
	}
	bb, err := newBase(engine.GatherKind, r, b.bo)
	if err != nil {
		return nil, err
	}
	return &Gather{base: *bb}, nil
}
