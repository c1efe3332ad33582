package socket

import (
	"time"

	"go.uber.org/zap"

	"github.com/strand-protocol/strandsock/internal/engine"
	"github.com/strand-protocol/strandsock/pkg/auth"
	"github.com/strand-protocol/strandsock/pkg/msg"
	"github.com/strand-protocol/strandsock/pkg/sockcfg"
)

// Dish is the receiving half of the radio-dish pattern. It only delivers
// messages published to groups it has joined; each delivered message
// carries its group. A Dish is safe for concurrent use.
type Dish struct {
	base
}

// NewDish returns an unconnected dish on the global session with default
// options. It delivers nothing until it joins a group.
func NewDish() (*Dish, error) {
	return NewDishBuilder().Build()
}

// NewDishFromConfig builds a dish from a declarative config section,
// pre-joined to its configured groups.
func NewDishFromConfig(cfg *sockcfg.DishConfig) (*Dish, error) {
	r, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	b, err := newBase(engine.DishKind, r, buildOptions{})
	if err != nil {
		return nil, err
	}
	return &Dish{base: *b}, nil
}

// Join subscribes the dish to group and propagates the subscription to
// every connected radio. Joining a group twice fails with
// ErrInvalidInput.
func (d *Dish) Join(group msg.Group) error {
	return d.h.Join(group)
}

// Leave drops a subscription. Leaving a group that was not joined fails
// with ErrInvalidInput.
func (d *Dish) Leave(group msg.Group) error {
	return d.h.Leave(group)
}

// Joined returns a snapshot of the current subscription set.
func (d *Dish) Joined() []msg.Group {
	return d.h.Joined()
}

// Recv returns the next message from a joined group, waiting per the
// configured recv timeout.
func (d *Dish) Recv() (msg.Message, error) {
	return d.recv()
}

// TryRecv is Recv without waiting.
func (d *Dish) TryRecv() (msg.Message, error) {
	return d.tryRecv()
}

// RecvTimeout is Recv bounded by an explicit timeout. A zero timeout
// never blocks.
func (d *Dish) RecvTimeout(timeout time.Duration) (msg.Message, error) {
	return d.recvWithin(timeout)
}

// DishBuilder assembles a Dish. Start from NewDishBuilder.
type DishBuilder struct {
	cfg sockcfg.DishConfig
	bo  buildOptions
}

// NewDishBuilder returns a builder with default options.
func NewDishBuilder() *DishBuilder {
	return &DishBuilder{}
}

// Connect adds endpoints the dish dials in the background.
func (b *DishBuilder) Connect(addrs ...string) *DishBuilder {
	b.cfg.Connect = append(b.cfg.Connect, addrs...)
	return b
}

// Bind adds endpoints the dish listens on.
func (b *DishBuilder) Bind(addrs ...string) *DishBuilder {
	b.cfg.Bind = append(b.cfg.Bind, addrs...)
	return b
}

// Backlog caps connections accepted but not yet handshaked.
func (b *DishBuilder) Backlog(n int) *DishBuilder {
	b.cfg.Backlog = n
	return b
}

// ConnectTimeout bounds each dial and handshake attempt.
func (b *DishBuilder) ConnectTimeout(d time.Duration) *DishBuilder {
	b.cfg.ConnectTimeout = sockcfg.Duration(d)
	return b
}

// Heartbeat enables liveness pings every interval.
func (b *DishBuilder) Heartbeat(interval time.Duration) *DishBuilder {
	b.cfg.HeartbeatInterval = sockcfg.Duration(interval)
	return b
}

// HeartbeatTimeout sets how long after an unanswered ping the connection
// is considered dead. Defaults to the heartbeat interval.
func (b *DishBuilder) HeartbeatTimeout(d time.Duration) *DishBuilder {
	b.cfg.HeartbeatTimeout = sockcfg.Duration(d)
	return b
}

// HeartbeatTTL bounds how long reconnection is attempted to a peer that
// never comes back.
func (b *DishBuilder) HeartbeatTTL(d time.Duration) *DishBuilder {
	b.cfg.HeartbeatTTL = sockcfg.Duration(d)
	return b
}

// Join subscribes the dish to groups at construction.
func (b *DishBuilder) Join(groups ...string) *DishBuilder {
	b.cfg.Groups = append(b.cfg.Groups, groups...)
	return b
}

// RecvHighWaterMark caps the incoming buffer.
func (b *DishBuilder) RecvHighWaterMark(n int) *DishBuilder {
	b.cfg.RecvHighWaterMark = n
	return b
}

// RecvTimeout sets the default wait for Recv. Zero means never block.
func (b *DishBuilder) RecvTimeout(d time.Duration) *DishBuilder {
	t := sockcfg.Duration(d)
	b.cfg.RecvTimeout = &t
	return b
}

// Mechanism sets the security mechanism.
func (b *DishBuilder) Mechanism(m auth.Mechanism) *DishBuilder {
	b.bo.mech = &m
	return b
}

// Logger attaches a structured logger to the socket's background
// machinery.
func (b *DishBuilder) Logger(l *zap.Logger) *DishBuilder {
	b.bo.logger = l
	return b
}

// Session attaches the socket to sess instead of the global session.
func (b *DishBuilder) Session(sess *Session) *DishBuilder {
	b.bo.sess = sess
	return b
}

// Build validates the configuration and constructs the dish.
func (b *DishBuilder) Build() (*Dish, error) {
	r, err := b.cfg.Resolve()
	if err != nil {
		return nil, err
	}
	bb, err := newBase(engine.DishKind, r, b.bo)
	if err != nil {
		return nil, err
	}
	return &Dish{base: *bb}, nil
}
