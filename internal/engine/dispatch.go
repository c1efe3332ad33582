package engine

import (
	"time"

	"github.com/strand-protocol/strandsock/pkg/msg"
)

// Blocking convention shared by Send and Recv: wait=false returns
// ErrWouldBlock immediately when the buffer cannot make progress; wait=true
// with timeout<=0 blocks until progress, closure, or peer loss; wait=true
// with timeout>0 blocks at most that long. On failure the caller keeps the
// message and may retry.

// Send dispatches m according to the handle's pattern.
func (h *Handle) Send(m msg.Message, timeout time.Duration, wait bool) error {
	if !h.opts.Kind.CanSend() {
		return ErrInvalidInput
	}
	var timeC <-chan time.Time
	if wait && timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeC = t.C
	}
	switch h.opts.Kind {
	case ServerKind:
		return h.sendRouted(m, timeC, wait)
	case RadioKind:
		return h.sendGroup(m, timeC, wait)
	default:
		return h.sendRoundRobin(m, timeC, wait)
	}
}

// Recv pops the next message from the incoming buffer.
func (h *Handle) Recv(timeout time.Duration, wait bool) (msg.Message, error) {
	if !h.opts.Kind.CanRecv() {
		return msg.Message{}, ErrInvalidInput
	}
	var timeC <-chan time.Time
	if wait && timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeC = t.C
	}
	for {
		if h.isClosed() {
			return msg.Message{}, ErrTerminated
		}
		select {
		case m := <-h.recvQ:
			if h.discardInbound(m) {
				continue
			}
			return m, nil
		default:
		}
		if !wait {
			return msg.Message{}, ErrWouldBlock
		}
		select {
		case m := <-h.recvQ:
			if h.discardInbound(m) {
				continue
			}
			return m, nil
		case <-h.done:
			return msg.Message{}, ErrTerminated
		case <-timeC:
			return msg.Message{}, ErrWouldBlock
		}
	}
}

// discardInbound drops messages whose group subscription lapsed between
// delivery and recv, so a dish never yields a group it has already left.
func (h *Handle) discardInbound(m msg.Message) bool {
	if h.opts.Kind != DishKind {
		return false
	}
	g, ok := m.Group()
	return !ok || !h.joinedHas(g)
}

// sendRoundRobin serves Client and Scatter: the message goes to exactly one
// peer, rotating across live connections and skipping those with full
// buffers. With no reachable peer the socket is in mute state and the call
// waits.
func (h *Handle) sendRoundRobin(m msg.Message, timeC <-chan time.Time, wait bool) error {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return ErrTerminated
		}
		notify := h.notify
		n := len(h.ring)
		for i := 0; i < n; i++ {
			slot := (h.rrIndex + i) % n
			if h.ring[slot].tryEnqueue(m) {
				h.rrIndex = (slot + 1) % n
				h.mu.Unlock()
				return nil
			}
		}
		h.mu.Unlock()

		if !wait {
			return ErrWouldBlock
		}
		select {
		case <-notify:
		case <-h.done:
			return ErrTerminated
		case <-timeC:
			return ErrWouldBlock
		}
	}
}

// sendRouted serves Server: the message goes to the peer identified by its
// routing id. An unknown or departed id fails immediately with
// ErrHostUnreachable instead of blocking.
func (h *Handle) sendRouted(m msg.Message, timeC <-chan time.Time, wait bool) error {
	id, ok := m.RoutingID()
	if !ok {
		return ErrHostUnreachable
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrTerminated
	}
	p, live := h.peers[id]
	h.mu.Unlock()
	if !live {
		return ErrHostUnreachable
	}

	if p.tryEnqueue(m) {
		return nil
	}
	if !wait {
		return ErrWouldBlock
	}
	select {
	case p.out <- m:
		return nil
	case <-p.done:
		return ErrHostUnreachable
	case <-h.done:
		return ErrTerminated
	case <-timeC:
		return ErrWouldBlock
	}
}

// sendGroup serves Radio: the message fans out to every peer subscribed to
// its group. Without no_drop, a missing audience or a full subscriber buffer
// drops silently; with no_drop the call waits for an audience and for buffer
// space.
func (h *Handle) sendGroup(m msg.Message, timeC <-chan time.Time, wait bool) error {
	g, ok := m.Group()
	if !ok {
		return ErrInvalidInput
	}
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return ErrTerminated
		}
		notify := h.notify
		var subs []*peer
		for _, p := range h.ring {
			if _, joined := p.groups[g.String()]; joined {
				subs = append(subs, p)
			}
		}
		h.mu.Unlock()

		if len(subs) > 0 {
			if !h.opts.NoDrop {
				for _, p := range subs {
					p.tryEnqueue(m) // full subscriber: drop for that peer
				}
				return nil
			}
			for _, p := range subs {
				if err := h.enqueueBlocking(p, m, timeC, wait); err != nil {
					return err
				}
			}
			return nil
		}

		// No audience.
		if !h.opts.NoDrop {
			return nil
		}
		if !wait {
			return ErrWouldBlock
		}
		select {
		case <-notify:
		case <-h.done:
			return ErrTerminated
		case <-timeC:
			return ErrWouldBlock
		}
	}
}

// enqueueBlocking waits for space in one subscriber's buffer. A subscriber
// that disconnects while we wait is treated as a departed audience member,
// not an error.
func (h *Handle) enqueueBlocking(p *peer, m msg.Message, timeC <-chan time.Time, wait bool) error {
	if p.tryEnqueue(m) {
		return nil
	}
	if !wait {
		return ErrWouldBlock
	}
	select {
	case p.out <- m:
		return nil
	case <-p.done:
		return nil
	case <-h.done:
		return ErrTerminated
	case <-timeC:
		return ErrWouldBlock
	}
}
