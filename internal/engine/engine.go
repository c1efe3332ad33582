// Package engine is the background messaging engine beneath strandsock
// sockets. All network I/O, handshakes, heartbeats and reconnection happen on
// engine-owned goroutines; the socket layer talks to the engine exclusively
// through bounded buffers, so user-facing calls only ever block on buffer
// capacity and their own timeouts.
package engine

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/strand-protocol/strandsock/pkg/auth"
	"github.com/strand-protocol/strandsock/pkg/endpoint"
	"github.com/strand-protocol/strandsock/pkg/msg"
)

// Engine-wide defaults, applied by Options.withDefaults.
const (
	DefaultHWM            = 1000
	DefaultBacklog        = 100
	DefaultConnectTimeout = 30 * time.Second

	initialBackoff = 50 * time.Millisecond
	maxBackoff     = time.Second
	writeTimeout   = 30 * time.Second
)

// Options carries the validated configuration snapshot a handle is built
// with. The socket builders populate it; the engine never re-validates
// cross-option invariants.
type Options struct {
	Kind Kind

	// Backlog caps connections accepted but not yet handshaked per bound
	// endpoint.
	Backlog int

	// ConnectTimeout bounds a single dial and handshake attempt.
	ConnectTimeout time.Duration

	// HeartbeatInterval enables liveness pings when positive.
	// HeartbeatTimeout defaults to the interval when unset. HeartbeatTTL,
	// when positive, bounds how long a dialer keeps retrying a peer that
	// never comes back before considering it permanently gone.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	HeartbeatTTL      time.Duration

	// RecvHWM and SendHWM bound the incoming buffer and each per-peer
	// outgoing buffer.
	RecvHWM int
	SendHWM int

	// NoDrop makes a Radio block instead of dropping when a group has no
	// audience or a subscriber's buffer is full.
	NoDrop bool

	// Groups pre-joins a Dish at construction.
	Groups []msg.Group

	Mechanism auth.Mechanism

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Backlog <= 0 {
		o.Backlog = DefaultBacklog
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.HeartbeatInterval > 0 && o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = o.HeartbeatInterval
	}
	if o.RecvHWM <= 0 {
		o.RecvHWM = DefaultHWM
	}
	if o.SendHWM <= 0 {
		o.SendHWM = DefaultHWM
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Handle is one socket's engine attachment. It owns the socket's buffers,
// listeners, dialers and live peers. A Handle is safe for concurrent use.
type Handle struct {
	sess *Session
	opts Options
	log  *zap.Logger

	recvQ chan msg.Message
	done  chan struct{}

	mu           sync.Mutex
	closed       bool
	notify       chan struct{} // replaced on every wake; see wait loops
	peers        map[uint32]*peer
	ring         []*peer // live peers in registration order
	rrIndex      int
	nextRouting  uint32
	joined       map[string]struct{} // dish subscription set
	listeners    []*listener
	dialers      []*dialer
	lastEndpoint *endpoint.Endpoint
}

// New attaches a fresh handle to sess. No I/O happens until Bind or Connect.
func New(sess *Session, opts Options) (*Handle, error) {
	opts = opts.withDefaults()
	h := &Handle{
		sess:   sess,
		opts:   opts,
		log:    opts.Logger.With(zap.String("socket", opts.Kind.String())),
		recvQ:  make(chan msg.Message, opts.RecvHWM),
		done:   make(chan struct{}),
		notify: make(chan struct{}),
		peers:  make(map[uint32]*peer),
		joined: make(map[string]struct{}),
	}
	for _, g := range opts.Groups {
		h.joined[g.String()] = struct{}{}
	}
	if err := sess.attach(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Kind returns the handle's socket pattern.
func (h *Handle) Kind() Kind { return h.opts.Kind }

// wakeLocked invalidates the current notify channel, releasing every waiter
// so it can re-examine state. Callers must hold h.mu.
func (h *Handle) wakeLocked() {
	close(h.notify)
	h.notify = make(chan struct{})
}

func (h *Handle) wake() {
	h.mu.Lock()
	h.wakeLocked()
	h.mu.Unlock()
}

// Bind synchronously binds ep and starts accepting connections. A wildcard
// tcp port is resolved to the concrete system-assigned one, recorded as the
// handle's last endpoint.
func (h *Handle) Bind(ep endpoint.Endpoint) (endpoint.Endpoint, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return endpoint.Endpoint{}, ErrTerminated
	}
	h.mu.Unlock()

	l, resolved, err := h.listen(ep)
	if err != nil {
		return endpoint.Endpoint{}, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		l.close()
		return endpoint.Endpoint{}, ErrTerminated
	}
	h.listeners = append(h.listeners, l)
	h.lastEndpoint = &resolved
	h.mu.Unlock()

	go l.acceptLoop()
	h.log.Debug("bound", zap.Stringer("endpoint", resolved))
	return resolved, nil
}

// Connect schedules background connection attempts to ep. It never blocks
// and only fails on a context-inappropriate address, such as a wildcard
// port.
func (h *Handle) Connect(ep endpoint.Endpoint) error {
	if ep.IsWildcard() {
		return fmt.Errorf("engine: connect to wildcard endpoint %s: %w", ep, endpoint.ErrInvalidAddress)
	}
	if ep.Transport() == endpoint.TCP && ep.Host() == "*" {
		return fmt.Errorf("engine: connect to unspecified interface %s: %w", ep, endpoint.ErrInvalidAddress)
	}
	// A connecting curve socket must pin the remote server key, or the
	// handshake would skip server verification entirely.
	if m := h.opts.Mechanism; m.IsSecure() {
		if _, ok := m.ServerKey(); !ok {
			return fmt.Errorf("engine: secure connect to %s without a pinned server key: %w", ep, ErrInvalidInput)
		}
	}

	d := &dialer{h: h, ep: ep, done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrTerminated
	}
	h.dialers = append(h.dialers, d)
	h.mu.Unlock()

	go d.run()
	return nil
}

// LastEndpoint returns the most recently bound endpoint with wildcards
// resolved, and whether the handle has bound at all.
func (h *Handle) LastEndpoint() (endpoint.Endpoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastEndpoint == nil {
		return endpoint.Endpoint{}, false
	}
	return *h.lastEndpoint, true
}

// PeerCount returns the number of live, handshaked connections.
func (h *Handle) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ring)
}

// Close releases the handle: listeners stop, dialers stop, peers drop, and
// every blocked send or recv returns ErrTerminated. Close is idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	listeners := h.listeners
	dialers := h.dialers
	peers := make([]*peer, len(h.ring))
	copy(peers, h.ring)
	h.wakeLocked()
	h.mu.Unlock()

	var err error
	for _, l := range listeners {
		err = multierr.Append(err, l.close())
	}
	for _, d := range dialers {
		d.stop()
	}
	for _, p := range peers {
		p.stop()
	}
	h.sess.detach(h)
	return err
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// register installs a handshaked peer and assigns its routing id. Routing
// ids are never reused within a handle's lifetime, so a send to a departed
// peer's id reliably fails instead of aliasing a newcomer.
func (h *Handle) register(p *peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrTerminated
	}
	h.nextRouting++
	p.id = h.nextRouting
	h.peers[p.id] = p
	h.ring = append(h.ring, p)

	// A dish replays its subscription set to every new radio peer.
	if h.opts.Kind == DishKind {
		for name := range h.joined {
			p.pushCtrl(opJoin, []byte(name))
		}
	}
	h.wakeLocked()
	return nil
}

func (h *Handle) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p.id]; !ok {
		return
	}
	delete(h.peers, p.id)
	for i, q := range h.ring {
		if q == p {
			h.ring = append(h.ring[:i], h.ring[i+1:]...)
			if h.rrIndex > i {
				h.rrIndex--
			}
			break
		}
	}
	if len(h.ring) > 0 {
		h.rrIndex %= len(h.ring)
	} else {
		h.rrIndex = 0
	}
	h.wakeLocked()
}

// peerJoin and peerLeave track a remote dish's subscriptions on the radio
// side.
func (h *Handle) peerJoin(p *peer, name string) {
	h.mu.Lock()
	p.groups[name] = struct{}{}
	h.wakeLocked()
	h.mu.Unlock()
}

func (h *Handle) peerLeave(p *peer, name string) {
	h.mu.Lock()
	delete(p.groups, name)
	h.wakeLocked()
	h.mu.Unlock()
}

// Join subscribes a dish to a group and propagates the subscription to every
// connected radio.
func (h *Handle) Join(g msg.Group) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrTerminated
	}
	if _, ok := h.joined[g.String()]; ok {
		return fmt.Errorf("engine: cannot join group %q twice: %w", g, ErrInvalidInput)
	}
	h.joined[g.String()] = struct{}{}
	for _, p := range h.ring {
		p.pushCtrl(opJoin, []byte(g.String()))
	}
	return nil
}

// Leave drops a dish subscription.
func (h *Handle) Leave(g msg.Group) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrTerminated
	}
	if _, ok := h.joined[g.String()]; !ok {
		return fmt.Errorf("engine: cannot leave group %q that was not joined: %w", g, ErrInvalidInput)
	}
	delete(h.joined, g.String())
	for _, p := range h.ring {
		p.pushCtrl(opLeave, []byte(g.String()))
	}
	return nil
}

// Joined returns a snapshot of the dish subscription set.
func (h *Handle) Joined() []msg.Group {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]msg.Group, 0, len(h.joined))
	for name := range h.joined {
		out = append(out, msg.MustGroup(name))
	}
	return out
}

func (h *Handle) joinedHas(g msg.Group) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.joined[g.String()]
	return ok
}

func (h *Handle) listen(ep endpoint.Endpoint) (*listener, endpoint.Endpoint, error) {
	switch ep.Transport() {
	case endpoint.Inproc:
		il, err := h.sess.bindInproc(ep.Name())
		if err != nil {
			return nil, endpoint.Endpoint{}, err
		}
		return newInprocBoundListener(h, ep, il), ep, nil
	case endpoint.TCP, endpoint.IPC:
		network, addr := ep.NetworkAddr()
		ln, err := net.Listen(network, addr)
		if err != nil {
			return nil, endpoint.Endpoint{}, fmt.Errorf("engine: bind %s: %w", ep, err)
		}
		resolved := ep
		if ep.IsWildcard() {
			tcpAddr, ok := ln.Addr().(*net.TCPAddr)
			if !ok {
				ln.Close()
				return nil, endpoint.Endpoint{}, fmt.Errorf("engine: bind %s: unexpected address %T", ep, ln.Addr())
			}
			resolved = ep.Resolved(uint16(tcpAddr.Port))
		}
		return newNetListener(h, resolved, ln), resolved, nil
	default:
		return nil, endpoint.Endpoint{}, fmt.Errorf("engine: bind %s: %w", ep, endpoint.ErrInvalidAddress)
	}
}
