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

// Server is the binding half of the client-server pattern. Every received
// message carries the routing id of the client it came from; replies must
// carry a routing id to address the destination client. A Server is safe
// for concurrent use.
type Server struct {
	base
}

// NewServer returns an unbound server on the global session with default
// options.
func NewServer() (*Server, error) {
	return NewServerBuilder().Build()
}

// NewServerFromConfig builds a server from a declarative config section.
func NewServerFromConfig(cfg *sockcfg.ServerConfig) (*Server, error) {
	r, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	b, err := newBase(engine.ServerKind, r, buildOptions{})
	if err != nil {
		return nil, err
	}
	return &Server{base: *b}, nil
}

// Send queues m for the client addressed by its routing id, waiting per
// the configured send timeout. A message without a routing id, or with
// the id of a departed client, fails with ErrHostUnreachable.
func (s *Server) Send(m msg.Message) error {
	if err := checkRoutedSend(m); err != nil {
		return err
	}
	return s.send(m)
}

// TrySend is Send without waiting: a full client buffer fails immediately
// with ErrWouldBlock.
func (s *Server) TrySend(m msg.Message) error {
	if err := checkRoutedSend(m); err != nil {
		return err
	}
	return s.trySend(m)
}

// SendTimeout is Send bounded by an explicit timeout. A zero timeout
// never blocks.
func (s *Server) SendTimeout(m msg.Message, timeout time.Duration) error {
	if err := checkRoutedSend(m); err != nil {
		return err
	}
	return s.sendWithin(m, timeout)
}

// Recv returns the next request, fair-queued across clients, waiting per
// the configured recv timeout. The message's routing id identifies the
// sender and stays stable for that client's connection.
func (s *Server) Recv() (msg.Message, error) {
	return s.recv()
}

// TryRecv is Recv without waiting.
func (s *Server) TryRecv() (msg.Message, error) {
	return s.tryRecv()
}

// RecvTimeout is Recv bounded by an explicit timeout. A zero timeout
// never blocks.
func (s *Server) RecvTimeout(timeout time.Duration) (msg.Message, error) {
	return s.recvWithin(timeout)
}

func checkRoutedSend(m msg.Message) error {
	if _, ok := m.Group(); ok {
		return fmt.Errorf("socket: groups are only valid on radio sends: %w", ErrInvalidInput)
	}
	return nil
}

// ServerBuilder assembles a Server. Start from NewServerBuilder.
type ServerBuilder struct {
	cfg sockcfg.ServerConfig
	bo  buildOptions
}

// NewServerBuilder returns a builder with default options.
func NewServerBuilder() *ServerBuilder {
	return &ServerBuilder{}
}

// Connect adds endpoints the server dials in the background.
func (b *ServerBuilder) Connect(addrs ...string) *ServerBuilder {
	b.cfg.Connect = append(b.cfg.Connect, addrs...)
	return b
}

// Bind adds endpoints the server listens on.
func (b *ServerBuilder) Bind(addrs ...string) *ServerBuilder {
	b.cfg.Bind = append(b.cfg.Bind, addrs...)
	return b
}

// Backlog caps connections accepted but not yet handshaked.
func (b *ServerBuilder) Backlog(n int) *ServerBuilder {
	b.cfg.Backlog = n
	return b
}

// ConnectTimeout bounds each dial and handshake attempt.
func (b *ServerBuilder) ConnectTimeout(d time.Duration) *ServerBuilder {
	b.cfg.ConnectTimeout = sockcfg.Duration(d)
	return b
}

// Heartbeat enables liveness pings every interval.
func (b *ServerBuilder) Heartbeat(interval time.Duration) *ServerBuilder {
	b.cfg.HeartbeatInterval = sockcfg.Duration(interval)
	return b
}

// HeartbeatTimeout sets how long after an unanswered ping the connection
// is considered dead. Defaults to the heartbeat interval.
func (b *ServerBuilder) HeartbeatTimeout(d time.Duration) *ServerBuilder {
	b.cfg.HeartbeatTimeout = sockcfg.Duration(d)
	return b
}

// HeartbeatTTL bounds how long reconnection is attempted to a peer that
// never comes back.
func (b *ServerBuilder) HeartbeatTTL(d time.Duration) *ServerBuilder {
	b.cfg.HeartbeatTTL = sockcfg.Duration(d)
	return b
}

// SendHighWaterMark caps each per-client outgoing buffer.
func (b *ServerBuilder) SendHighWaterMark(n int) *ServerBuilder {
	b.cfg.SendHighWaterMark = n
	return b
}

// SendTimeout sets the default wait for Send. Zero means never block.
func (b *ServerBuilder) SendTimeout(d time.Duration) *ServerBuilder {
	t := sockcfg.Duration(d)
	b.cfg.SendTimeout = &t
	return b
}

// RecvHighWaterMark caps the incoming buffer.
func (b *ServerBuilder) RecvHighWaterMark(n int) *ServerBuilder {
	b.cfg.RecvHighWaterMark = n
	return b
}

// RecvTimeout sets the default wait for Recv. Zero means never block.
func (b *ServerBuilder) RecvTimeout(d time.Duration) *ServerBuilder {
	t := sockcfg.Duration(d)
	b.cfg.RecvTimeout = &t
	return b
}

// Mechanism sets the security mechanism.
func (b *ServerBuilder) Mechanism(m auth.Mechanism) *ServerBuilder {
	b.bo.mech = &m
	return b
}

// Logger attaches a structured logger to the socket's background
// machinery.
func (b *ServerBuilder) Logger(l *zap.Logger) *ServerBuilder {
	b.bo.logger = l
	return b
}

// Session attaches the socket to sess instead of the global session.
func (b *ServerBuilder) Session(sess *Session) *ServerBuilder {
	b.bo.sess = sess
	return b
}

// Build validates the configuration and constructs the server.
func (b *ServerBuilder) Build() (*Server, error) {
	r, err := b.cfg.Resolve()
	if err != nil {
		return nil, err
	}
	bb, err := newBase(engine.ServerKind, r, b.bo)
	if err != nil {
		return nil, err
	}
	return &Server{base: *bb}, nil
}
