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

// Client is the connecting half of the client-server pattern. Sends are
// distributed round-robin across connected servers; replies are
// fair-queued into a single stream. A Client is safe for concurrent use.
type Client struct {
	base
}

// NewClient returns an unconnected client on the global session with
// default options.
func NewClient() (*Client, error) {
	return NewClientBuilder().Build()
}

// NewClientFromConfig builds a client from a declarative config section.
func NewClientFromConfig(cfg *sockcfg.ClientConfig) (*Client, error) {
	r, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	b, err := newBase(engine.ClientKind, r, buildOptions{})
	if err != nil {
		return nil, err
	}
	return &Client{base: *b}, nil
}

// Send queues m for delivery to one server, waiting per the configured
// send timeout. Client messages carry no routing id and no group.
func (c *Client) Send(m msg.Message) error {
	if err := checkPlainSend(m); err != nil {
		return err
	}
	return c.send(m)
}

// TrySend is Send without waiting: a full buffer or no connected server
// fails immediately with ErrWouldBlock.
func (c *Client) TrySend(m msg.Message) error {
	if err := checkPlainSend(m); err != nil {
		return err
	}
	return c.trySend(m)
}

// SendTimeout is Send bounded by an explicit timeout instead of the
// configured one. A zero timeout never blocks.
func (c *Client) SendTimeout(m msg.Message, timeout time.Duration) error {
	if err := checkPlainSend(m); err != nil {
		return err
	}
	return c.sendWithin(m, timeout)
}

// Recv returns the next reply, waiting per the configured recv timeout.
func (c *Client) Recv() (msg.Message, error) {
	return c.recv()
}

// TryRecv is Recv without waiting.
func (c *Client) TryRecv() (msg.Message, error) {
	return c.tryRecv()
}

// RecvTimeout is Recv bounded by an explicit timeout. A zero timeout
// never blocks.
func (c *Client) RecvTimeout(timeout time.Duration) (msg.Message, error) {
	return c.recvWithin(timeout)
}

// checkPlainSend rejects message attributes that only routed or grouped
// variants may set.
func checkPlainSend(m msg.Message) error {
	if _, ok := m.RoutingID(); ok {
		return fmt.Errorf("socket: routing ids are only valid on server sends: %w", ErrInvalidInput)
	}
	if _, ok := m.Group(); ok {
		return fmt.Errorf("socket: groups are only valid on radio sends: %w", ErrInvalidInput)
	}
	return nil
}

// ClientBuilder assembles a Client. The zero value is not usable; start
// from NewClientBuilder.
type ClientBuilder struct {
	cfg sockcfg.ClientConfig
	bo  buildOptions
}

// NewClientBuilder returns a builder with default options.
func NewClientBuilder() *ClientBuilder {
	return &ClientBuilder{}
}

// Connect adds endpoints the client dials in the background.
func (b *ClientBuilder) Connect(addrs ...string) *ClientBuilder {
	b.cfg.Connect = append(b.cfg.Connect, addrs...)
	return b
}

// Bind adds endpoints the client listens on.
func (b *ClientBuilder) Bind(addrs ...string) *ClientBuilder {
	b.cfg.Bind = append(b.cfg.Bind, addrs...)
	return b
}

// Backlog caps connections accepted but not yet handshaked.
func (b *ClientBuilder) Backlog(n int) *ClientBuilder {
	b.cfg.Backlog = n
	return b
}

// ConnectTimeout bounds each dial and handshake attempt.
func (b *ClientBuilder) ConnectTimeout(d time.Duration) *ClientBuilder {
	b.cfg.ConnectTimeout = sockcfg.Duration(d)
	return b
}

// Heartbeat enables liveness pings every interval.
func (b *ClientBuilder) Heartbeat(interval time.Duration) *ClientBuilder {
	b.cfg.HeartbeatInterval = sockcfg.Duration(interval)
	return b
}

// HeartbeatTimeout sets how long after an unanswered ping the connection
// is considered dead. Defaults to the heartbeat interval.
func (b *ClientBuilder) HeartbeatTimeout(d time.Duration) *ClientBuilder {
	b.cfg.HeartbeatTimeout = sockcfg.Duration(d)
	return b
}

// HeartbeatTTL bounds how long reconnection is attempted to a peer that
// never comes back.
func (b *ClientBuilder) HeartbeatTTL(d time.Duration) *ClientBuilder {
	b.cfg.HeartbeatTTL = sockcfg.Duration(d)
	return b
}

// SendHighWaterMark caps each per-peer outgoing buffer.
func (b *ClientBuilder) SendHighWaterMark(n int) *ClientBuilder {
	b.cfg.SendHighWaterMark = n
	return b
}

// SendTimeout sets the default wait for Send. Zero means never block.
func (b *ClientBuilder) SendTimeout(d time.Duration) *ClientBuilder {
	t := sockcfg.Duration(d)
	b.cfg.SendTimeout = &t
	return b
}

// RecvHighWaterMark caps the incoming buffer.
func (b *ClientBuilder) RecvHighWaterMark(n int) *ClientBuilder {
	b.cfg.RecvHighWaterMark = n
	return b
}

// RecvTimeout sets the default wait for Recv. Zero means never block.
func (b *ClientBuilder) RecvTimeout(d time.Duration) *ClientBuilder {
	t := sockcfg.Duration(d)
	b.cfg.RecvTimeout = &t
	return b
}

// Mechanism sets the security mechanism.
func (b *ClientBuilder) Mechanism(m auth.Mechanism) *ClientBuilder {
	b.bo.mech = &m
	return b
}

// Logger attaches a structured logger to the socket's background
// machinery.
func (b *ClientBuilder) Logger(l *zap.Logger) *ClientBuilder {
	b.bo.logger = l
	return b
}

// Session attaches the socket to sess instead of the global session.
func (b *ClientBuilder) Session(sess *Session) *ClientBuilder {
	b.bo.sess = sess
	return b
}

// Build validates the configuration and constructs the client. Binds
// happen synchronously; connects proceed in the background.
func (b *ClientBuilder) Build() (*Client, error) {
	r, err := b.cfg.Resolve()
	if err != nil {
		return nil, err
	}
	bb, err := newBase(engine.ClientKind, r, b.bo)
	if err != nil {
		return nil, err
	}
	return &Client{base: *bb}, nil
}
