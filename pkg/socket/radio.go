package socket

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/strand-protocol/strandsock/internal/engine"
	"github.com/strand-protocol/strandsock/pkg/auth"
	"github.com/strand-protocol/strandsock/pkg/msg"
	"github.com/strand-protocol/strandsock/pkg/sockcfg"
)

// Radio is the sending half of the radio-dish pattern. Every message is
// published to a group and delivered to each connected dish that joined
// it. By default a radio never blocks: messages to groups without an
// audience, and messages a slow dish has no buffer space for, are
// dropped. With NoDrop the radio waits instead. A Radio is safe for
// concurrent use.
type Radio struct {
	base
}

// NewRadio returns an unbound radio on the global session with default
// options.
func NewRadio() (*Radio, error) {
	return NewRadioBuilder().Build()
}

// NewRadioFromConfig builds a radio from a declarative config section.
func NewRadioFromConfig(cfg *sockcfg.RadioConfig) (*Radio, error) {
	r, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	b, err := newBase(engine.RadioKind, r, buildOptions{})
	if err != nil {
		return nil, err
	}
	return &Radio{base: *b}, nil
}

// Send publishes m to the group it carries. A message without a group
// fails with ErrInvalidInput.
func (r *Radio) Send(m msg.Message) error {
	if err := checkGroupSend(m); err != nil {
		return err
	}
	return r.send(m)
}

// TrySend is Send without waiting. It only differs from Send under
// NoDrop, where a full subscriber buffer fails immediately with
// ErrWouldBlock instead of waiting.
func (r *Radio) TrySend(m msg.Message) error {
	if err := checkGroupSend(m); err != nil {
		return err
	}
	return r.trySend(m)
}

// SendTimeout is Send bounded by an explicit timeout. A zero timeout
// never blocks.
func (r *Radio) SendTimeout(m msg.Message, timeout time.Duration) error {
	if err := checkGroupSend(m); err != nil {
		return err
	}
	return r.sendWithin(m, timeout)
}

// Transmit publishes m to group. It is Send with the group set for the
// caller.
func (r *Radio) Transmit(m msg.Message, group msg.Group) error {
	m.SetGroup(group)
	return r.Send(m)
}

func checkGroupSend(m msg.Message) error {
	if _, ok := m.RoutingID(); ok {
		return fmt.Errorf("socket: routing ids are only valid on server sends: %w", ErrInvalidInput)
	}
	if _, ok := m.Group(); !ok {
		return fmt.Errorf("socket: radio sends require a group: %w", ErrInvalidInput)
	}
	return nil
}

// RadioBuilder assembles a Radio. Start from NewRadioBuilder.
type RadioBuilder struct {
	cfg sockcfg.RadioConfig
	bo  buildOptions
}

// NewRadioBuilder returns a builder with default options.
func NewRadioBuilder() *RadioBuilder {
	return &RadioBuilder{}
}

// Connect adds endpoints the radio dials in the background.
func (b *RadioBuilder) Connect(addrs ...string) *RadioBuilder {
	b.cfg.Connect = append(b.cfg.Connect, addrs...)
	return b
}

// Bind adds endpoints the radio listens on.
func (b *RadioBuilder) Bind(addrs ...string) *RadioBuilder {
	b.cfg.Bind = append(b.cfg.Bind, addrs...)
	return b
}

// Backlog caps connections accepted but not yet handshaked.
func (b *RadioBuilder) Backlog(n int) *RadioBuilder {
	b.cfg.Backlog = n
	return b
}

// ConnectTimeout bounds each dial and handshake attempt.
func (b *RadioBuilder) ConnectTimeout(d time.Duration) *RadioBuilder {
	b.cfg.ConnectTimeout = sockcfg.Duration(d)
	return b
}

// Heartbeat enables liveness pings every interval.
func (b *RadioBuilder) Heartbeat(interval time.Duration) *RadioBuilder {
	b.cfg.HeartbeatInterval = sockcfg.Duration(interval)
	return b
}

// HeartbeatTimeout sets how long after an unanswered ping the connection
// is considered dead. Defaults to the heartbeat interval.
func (b *RadioBuilder) HeartbeatTimeout(d time.Duration) *RadioBuilder {
	b.cfg.HeartbeatTimeout = sockcfg.Duration(d)
	return b
}

// HeartbeatTTL bounds how long reconnection is attempted to a peer that
// never comes back.
func (b *RadioBuilder) HeartbeatTTL(d time.Duration) *RadioBuilder {
	b.cfg.HeartbeatTTL = sockcfg.Duration(d)
	return b
}

// SendHighWaterMark caps each subscriber's outgoing buffer.
func (b *RadioBuilder) SendHighWaterMark(n int) *RadioBuilder {
	b.cfg.SendHighWaterMark = n
	return b
}

// SendTimeout sets the default wait for Send under NoDrop. Zero means
// never block.
func (b *RadioBuilder) SendTimeout(d time.Duration) *RadioBuilder {
	t := sockcfg.Duration(d)
	b.cfg.SendTimeout = &t
	return b
}

// NoDrop makes Send wait instead of silently dropping when a group has
// no audience or a subscriber's buffer is full.
func (b *RadioBuilder) NoDrop() *RadioBuilder {
	b.cfg.NoDrop = true
	return b
}

// Mechanism sets the security mechanism.
func (b *RadioBuilder) Mechanism(m auth.Mechanism) *RadioBuilder {
	b.bo.mech = &m
	return b
}

// Logger attaches a structured logger to the socket's background
// machinery.
func (b *RadioBuilder) Logger(l *zap.Logger) *RadioBuilder {
	b.bo.logger = l
	return b
}

// Session attaches the socket to sess instead of the global session.
func (b *RadioBuilder) Session(sess *Session) *RadioBuilder {
	b.bo.sess = sess
	return b
}

// Build validates the configuration and constructs the radio.
func (b *RadioBuilder) Build() (*Radio, error) {
	r, err := b.cfg.Resolve()
	if err != nil {
		return nil, err
	}
	bb, err := newBase(engine.RadioKind, r, b.bo)
	if err != nil {
		return nil, err
	}
	return &Radio{base: *bb}, nil
}
