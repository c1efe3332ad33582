package socket

import (
	"time"

	"go.uber.org/zap"

	"github.com/strand-protocol/strandsock/internal/engine"
	"github.com/strand-protocol/strandsock/pkg/auth"
	"github.com/strand-protocol/strandsock/pkg/msg"
	"github.com/strand-protocol/strandsock/pkg/sockcfg"
)

// Scatter is the distributing half of the scatter-gather pipeline. Each
// message goes to exactly one connected gather, chosen round-robin; a
// peer whose buffer is full is skipped so one slow consumer does not
// stall the pipeline. A Scatter is safe for concurrent use.
type Scatter struct {
	base
}

// NewScatter returns an unconnected scatter on the global session with
// default options.
func NewScatter() (*Scatter, error) {
	return NewScatterBuilder().Build()
}

// NewScatterFromConfig builds a scatter from a declarative config
// section.
func NewScatterFromConfig(cfg *sockcfg.ScatterConfig) (*Scatter, error) {
	r, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	b, err := newBase(engine.ScatterKind, r, buildOptions{})
	if err != nil {
		return nil, err
	}
	return &Scatter{base: *b}, nil
}

// Send queues m for exactly one gather, waiting per the configured send
// timeout. Scatter messages carry no routing id and no group.
func (s *Scatter) Send(m msg.Message) error {
	if err := checkPlainSend(m); err != nil {
		return err
	}
	return s.send(m)
}

// TrySend is Send without waiting: with every peer buffer full, or no
// peer at all, it fails immediately with ErrWouldBlock.
func (s *Scatter) TrySend(m msg.Message) error {
	if err := checkPlainSend(m); err != nil {
		return err
	}
	return s.trySend(m)
}

// SendTimeout is Send bounded by an explicit timeout. A zero timeout
// never blocks.
func (s *Scatter) SendTimeout(m msg.Message, timeout time.Duration) error {
	if err := checkPlainSend(m); err != nil {
		return err
	}
	return s.sendWithin(m, timeout)
}

// ScatterBuilder assembles a Scatter. Start from NewScatterBuilder.
type ScatterBuilder struct {
	cfg sockcfg.ScatterConfig
	bo  buildOptions
}

// NewScatterBuilder returns a builder with default options.
func NewScatterBuilder() *ScatterBuilder {
	return &ScatterBuilder{}
}

// Connect adds endpoints the scatter dials in the background.
func (b *ScatterBuilder) Connect(addrs ...string) *ScatterBuilder {
	b.cfg.Connect = append(b.cfg.Connect, addrs...)
	return b
}

// Bind adds endpoints the scatter listens on.
func (b *ScatterBuilder) Bind(addrs ...string) *ScatterBuilder {
	b.cfg.Bind = append(b.cfg.Bind, addrs...)
	return b
}

// Backlog caps connections accepted but not yet handshaked.
func (b *ScatterBuilder) Backlog(n int) *ScatterBuilder {
	b.cfg.Backlog = n
	return b
}

// ConnectTimeout bounds each dial and handshake attempt.
func (b *ScatterBuilder) ConnectTimeout(d time.Duration) *ScatterBuilder {
	b.cfg.ConnectTimeout = sockcfg.Duration(d)
	return b
}

// Heartbeat enables liveness pings every interval.
func (b *ScatterBuilder) Heartbeat(interval time.Duration) *ScatterBuilder {
	b.cfg.HeartbeatInterval = sockcfg.Duration(interval)
	return b
}

// HeartbeatTimeout sets how long after an unanswered ping the connection
// is considered dead. Defaults to the heartbeat interval.
func (b *ScatterBuilder) HeartbeatTimeout(d time.Duration) *ScatterBuilder {
	b.cfg.HeartbeatTimeout = sockcfg.Duration(d)
	return b
}

// HeartbeatTTL bounds how long reconnection is attempted to a peer that
// never comes back.
func (b *ScatterBuilder) HeartbeatTTL(d time.Duration) *ScatterBuilder {
	b.cfg.HeartbeatTTL = sockcfg.Duration(d)
	return b
}

// SendHighWaterMark caps each per-peer outgoing buffer.
func (b *ScatterBuilder) SendHighWaterMark(n int) *ScatterBuilder {
	b.cfg.SendHighWaterMark = n
	return b
}

// SendTimeout sets the default wait for Send. Zero means never block.
func (b *ScatterBuilder) SendTimeout(d time.Duration) *ScatterBuilder {
	t := sockcfg.Duration(d)
	b.cfg.SendTimeout = &t
	return b
}

// Mechanism sets the security mechanism.
func (b *ScatterBuilder) Mechanism(m auth.Mechanism) *ScatterBuilder {
	b.bo.mech = &m
	return b
}

// Logger attaches a structured logger to the socket's background
// machinery.
func (b *ScatterBuilder) Logger(l *zap.Logger) *ScatterBuilder {
	b.bo.logger = l
	return b
}

// Session attaches the socket to sess instead of the global session.
func (b *ScatterBuilder) Session(sess *Session) *ScatterBuilder {
	b.bo.sess = sess
	return b
}

// Build validates the configuration and constructs the scatter.
func (b *ScatterBuilder) Build() (*Scatter, error) {
	r, err := b.cfg.Resolve()
	if err != nil {
		return nil, err
	}
	bb, err := newBase(engine.ScatterKind, r, b.bo)
	if err != nil {
		return nil, err
	}
	return &Scatter{base: *bb}, nil
}
