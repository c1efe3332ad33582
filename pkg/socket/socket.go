// Package socket provides the thread-safe socket variants of strandsock.
//
// Each variant is its own type carrying only the operations its pattern
// supports: a Client or Server both sends and receives, a Radio only sends
// to groups, a Dish only receives from joined groups, and Scatter/Gather
// distribute and collect a pipeline of messages. Sockets are built either
// with a fluent per-variant builder or from a declarative sockcfg section,
// and construction is all-or-nothing: if any bind or connect endpoint is
// rejected, no socket is returned.
//
//	server, err := socket.NewServerBuilder().
//		Bind("tcp://0.0.0.0:*").
//		Build()
//
// All I/O happens on background goroutines; Send and Recv only ever block
// on buffer capacity and the socket's configured timeouts. A nil timeout
// blocks forever, a zero timeout never blocks, and a positive timeout
// bounds the wait, failing with ErrWouldBlock.
package socket

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strand-protocol/strandsock/internal/engine"
	"github.com/strand-protocol/strandsock/pkg/auth"
	"github.com/strand-protocol/strandsock/pkg/endpoint"
	"github.com/strand-protocol/strandsock/pkg/msg"
	"github.com/strand-protocol/strandsock/pkg/sockcfg"
)

// Session groups sockets for collective teardown and hosts their inproc
// namespace: inproc endpoints only reach sockets of the same session.
// Most programs use the implicit global session.
type Session struct {
	eng *engine.Session
}

// NewSession creates an isolated session.
func NewSession() *Session {
	return &Session{eng: engine.NewSession()}
}

var (
	globalOnce sync.Once
	globalSess *Session
)

// GlobalSession returns the process-wide session that sockets attach to by
// default.
func GlobalSession() *Session {
	globalOnce.Do(func() {
		globalSess = &Session{eng: engine.Global()}
	})
	return globalSess
}

// Close releases every socket attached to the session. Blocked calls on
// those sockets return ErrTerminated. Close is idempotent.
func (s *Session) Close() error {
	return s.eng.Close()
}

// base carries the machinery every variant shares. The exported variant
// types embed it and add their pattern's operations on top.
type base struct {
	h           *engine.Handle
	sendTimeout *time.Duration
	recvTimeout *time.Duration
}

// blockingArgs maps a configured timeout to the engine's calling
// convention: nil blocks forever, zero never blocks, positive bounds the
// wait.
func blockingArgs(t *time.Duration) (time.Duration, bool) {
	if t == nil {
		return 0, true
	}
	if *t == 0 {
		return 0, false
	}
	return *t, true
}

func (b *base) send(m msg.Message) error {
	timeout, wait := blockingArgs(b.sendTimeout)
	return b.h.Send(m, timeout, wait)
}

func (b *base) trySend(m msg.Message) error {
	return b.h.Send(m, 0, false)
}

func (b *base) sendWithin(m msg.Message, timeout time.Duration) error {
	return b.h.Send(m, timeout, timeout > 0)
}

func (b *base) recv() (msg.Message, error) {
	timeout, wait := blockingArgs(b.recvTimeout)
	return b.h.Recv(timeout, wait)
}

func (b *base) tryRecv() (msg.Message, error) {
	return b.h.Recv(0, false)
}

func (b *base) recvWithin(timeout time.Duration) (msg.Message, error) {
	return b.h.Recv(timeout, timeout > 0)
}

// Connect schedules background connection attempts to ep. The socket is
// usable immediately; sends queue up to the high water mark until a peer
// completes its handshake.
func (b *base) Connect(ep endpoint.Endpoint) error {
	return b.h.Connect(ep)
}

// Bind listens on ep and accepts incoming connections. Binding a wildcard
// tcp port resolves it; the concrete endpoint is returned and recorded as
// the socket's last endpoint.
func (b *base) Bind(ep endpoint.Endpoint) (endpoint.Endpoint, error) {
	return b.h.Bind(ep)
}

// LastEndpoint returns the most recently bound endpoint, wildcards
// resolved, and whether the socket has bound at all.
func (b *base) LastEndpoint() (endpoint.Endpoint, bool) {
	return b.h.LastEndpoint()
}

// PeerCount returns the number of live, handshaked connections.
func (b *base) PeerCount() int {
	return b.h.PeerCount()
}

// Close releases the socket. Blocked operations return ErrTerminated.
// Close is idempotent.
func (b *base) Close() error {
	return b.h.Close()
}

// buildOptions is the builder state common to every variant.
type buildOptions struct {
	sess   *Session
	logger *zap.Logger
	mech   *auth.Mechanism
}

// newBase validates r, attaches a handle and performs the initial binds
// and connects. On any failure the half-built socket is torn down.
func newBase(kind engine.Kind, r *sockcfg.Resolved, bo buildOptions) (*base, error) {
	sess := bo.sess
	if sess == nil {
		sess = GlobalSession()
	}

	mech := r.Mechanism
	if bo.mech != nil {
		mech = *bo.mech
		if _, ok := mech.ServerKey(); mech.IsSecure() && !ok && len(r.Connect) > 0 {
			return nil, fmt.Errorf("socket: secure mechanism with connect endpoints requires a server key: %w", ErrInvalidConfig)
		}
	}

	h, err := engine.New(sess.eng, engine.Options{
		Kind:              kind,
		Backlog:           r.Backlog,
		ConnectTimeout:    r.ConnectTimeout,
		HeartbeatInterval: r.HeartbeatInterval,
		HeartbeatTimeout:  r.HeartbeatTimeout,
		HeartbeatTTL:      r.HeartbeatTTL,
		RecvHWM:           r.RecvHWM,
		SendHWM:           r.SendHWM,
		NoDrop:            r.NoDrop,
		Groups:            r.Groups,
		Mechanism:         mech,
		Logger:            bo.logger,
	})
	if err != nil {
		return nil, err
	}

	for _, ep := range r.Bind {
		if _, err := h.Bind(ep); err != nil {
			h.Close()
			return nil, err
		}
	}
	for _, ep := range r.Connect {
		if err := h.Connect(ep); err != nil {
			h.Close()
			return nil, err
		}
	}
	return &base{h: h, sendTimeout: r.SendTimeout, recvTimeout: r.RecvTimeout}, nil
}
