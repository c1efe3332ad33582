package engine

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/strand-protocol/strandsock/pkg/msg"
)

// peer is one live connection. Its reader and writer goroutines are the only
// code touching the conn after the handshake; the rest of the engine reaches
// the peer through its bounded out buffer and small control queue.
type peer struct {
	h    *Handle
	conn net.Conn

	id   uint32
	out  chan msg.Message
	ctrl chan frame
	done chan struct{}
	once sync.Once

	// groups holds the remote dish's subscriptions, maintained on the
	// radio side from join/leave frames. Guarded by h.mu.
	groups map[string]struct{}

	lastRecv atomic.Int64 // unix nanos of the last inbound frame
}

func newPeer(h *Handle, conn net.Conn) *peer {
	return &peer{
		h:      h,
		conn:   conn,
		out:    make(chan msg.Message, h.opts.SendHWM),
		ctrl:   make(chan frame, 16),
		done:   make(chan struct{}),
		groups: make(map[string]struct{}),
	}
}

// stop tears the peer down. Closing the conn unblocks the reader; closing
// done unblocks the writer and anyone mid-send to this peer.
func (p *peer) stop() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// tryEnqueue offers m to the peer's outgoing buffer without blocking.
func (p *peer) tryEnqueue(m msg.Message) bool {
	select {
	case p.out <- m:
		return true
	default:
		return false
	}
}

// pushCtrl queues a control frame, dropping it if the control queue is
// saturated; heartbeats and subscription replays tolerate loss because they
// repeat.
func (p *peer) pushCtrl(op byte, payload []byte) {
	select {
	case p.ctrl <- frame{op: op, payload: payload}:
	default:
	}
}

// run drives the connection to completion: handshake, registration, then the
// read/write/monitor loops until the first failure. onReady, when non-nil,
// is called once the handshake succeeds; listeners use it to release their
// backlog slot.
func (p *peer) run(initiator bool, onReady func()) error {
	defer p.stop()

	if err := p.handshake(initiator); err != nil {
		p.h.log.Debug("handshake failed",
			zap.String("remote", p.remoteLabel()), zap.Error(err))
		return err
	}
	if onReady != nil {
		onReady()
	}
	if err := p.h.register(p); err != nil {
		return err
	}
	defer p.h.unregister(p)
	p.lastRecv.Store(time.Now().UnixNano())

	p.h.log.Debug("peer up", zap.String("remote", p.remoteLabel()), zap.Uint32("routing_id", p.id))

	var eg errgroup.Group
	eg.Go(p.readLoop)
	eg.Go(p.writeLoop)
	if p.h.opts.HeartbeatInterval > 0 {
		eg.Go(p.monitorLoop)
	}
	err := eg.Wait()
	if err != nil {
		p.h.log.Debug("peer down", zap.String("remote", p.remoteLabel()), zap.Error(err))
	}
	return err
}

func (p *peer) remoteLabel() string {
	if addr := p.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "?"
}

func (p *peer) readLoop() error {
	for {
		op, payload, err := readFrame(p.conn)
		if err != nil {
			select {
			case <-p.done:
				return nil // deliberate teardown
			default:
			}
			p.stop()
			return fmt.Errorf("engine: read: %w", err)
		}
		p.lastRecv.Store(time.Now().UnixNano())

		switch op {
		case opMsg:
			m, err := decodeMsg(payload)
			if err != nil {
				p.stop()
				return err
			}
			if !p.deliver(m) {
				return nil
			}
		case opPing:
			p.pushCtrl(opPong, nil)
		case opPong:
			// lastRecv already refreshed.
		case opJoin:
			if g, err := msg.NewGroup(string(payload)); err == nil {
				p.h.peerJoin(p, g.String())
			}
		case opLeave:
			if g, err := msg.NewGroup(string(payload)); err == nil {
				p.h.peerLeave(p, g.String())
			}
		default:
			// Unknown op within a known version: drop the frame.
		}
	}
}

// deliver pushes an inbound message toward the socket, applying the
// pattern's inbound policy. It blocks when the incoming buffer is at its
// high water mark, which is what stalls the remote sender. Returns false
// when the peer or handle is shutting down.
func (p *peer) deliver(m msg.Message) bool {
	switch p.h.opts.Kind {
	case ServerKind:
		m.SetRoutingID(p.id)
	case DishKind:
		g, ok := m.Group()
		if !ok || !p.h.joinedHas(g) {
			return true // not subscribed: drop, keep reading
		}
	case ClientKind, GatherKind:
	default:
		return true // send-only patterns ignore inbound payloads
	}
	select {
	case p.h.recvQ <- m:
		return true
	case <-p.done:
		return false
	case <-p.h.done:
		return false
	}
}

func (p *peer) writeLoop() error {
	var pingC <-chan time.Time
	if interval := p.h.opts.HeartbeatInterval; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pingC = ticker.C
	}
	for {
		select {
		case m := <-p.out:
			if err := p.write(opMsg, encodeMsg(m)); err != nil {
				return err
			}
			p.h.wake() // buffer space freed
		case f := <-p.ctrl:
			if err := p.write(f.op, f.payload); err != nil {
				return err
			}
		case <-pingC:
			if err := p.write(opPing, nil); err != nil {
				return err
			}
		case <-p.done:
			return nil
		}
	}
}

func (p *peer) write(op byte, payload []byte) error {
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		p.stop()
		return err
	}
	if err := writeFrame(p.conn, op, payload); err != nil {
		select {
		case <-p.done:
			return nil
		default:
		}
		p.stop()
		return fmt.Errorf("engine: write: %w", err)
	}
	return nil
}

// monitorLoop declares the peer dead when nothing has arrived for a full
// heartbeat timeout past the ping interval.
func (p *peer) monitorLoop() error {
	interval := p.h.opts.HeartbeatInterval
	limit := interval + p.h.opts.HeartbeatTimeout
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			idle := time.Since(time.Unix(0, p.lastRecv.Load()))
			if idle > limit {
				p.stop()
				return fmt.Errorf("engine: peer unresponsive for %v", idle)
			}
		case <-p.done:
			return nil
		}
	}
}
