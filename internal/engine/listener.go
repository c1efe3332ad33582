package engine

import (
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/strand-protocol/strandsock/pkg/endpoint"
)

// listener accepts inbound connections for one bound endpoint and hands each
// to a peer goroutine. The backlog option caps connections that have been
// accepted but not yet handshaked.
type listener struct {
	h  *Handle
	ep string

	ln     net.Listener    // nil for inproc
	il     *inprocListener // nil for tcp and ipc
	ilName string

	sem  chan struct{}
	done chan struct{}
	once sync.Once
}

func newNetListener(h *Handle, ep endpoint.Endpoint, ln net.Listener) *listener {
	return &listener{
		h:    h,
		ep:   ep.String(),
		ln:   ln,
		sem:  make(chan struct{}, h.opts.Backlog),
		done: make(chan struct{}),
	}
}

func newInprocBoundListener(h *Handle, ep endpoint.Endpoint, il *inprocListener) *listener {
	return &listener{
		h:      h,
		ep:     ep.String(),
		il:     il,
		ilName: ep.Name(),
		sem:    make(chan struct{}, h.opts.Backlog),
		done:   make(chan struct{}),
	}
}

func (l *listener) close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		if l.ln != nil {
			err = l.ln.Close()
		}
		if l.il != nil {
			l.h.sess.releaseInproc(l.ilName)
		}
	})
	return err
}

func (l *listener) acceptLoop() {
	for {
		conn, ok := l.accept()
		if !ok {
			return
		}
		select {
		case l.sem <- struct{}{}:
		case <-l.done:
			conn.Close()
			return
		case <-l.h.done:
			conn.Close()
			return
		}
		go func(conn net.Conn) {
			p := newPeer(l.h, conn)
			var releaseOnce sync.Once
			release := func() { releaseOnce.Do(func() { <-l.sem }) }
			_ = p.run(false, release)
			release()
		}(conn)
	}
}

func (l *listener) accept() (net.Conn, bool) {
	if l.ln != nil {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
			case <-l.h.done:
			default:
				l.h.log.Warn("accept failed", zap.String("endpoint", l.ep), zap.Error(err))
			}
			return nil, false
		}
		return conn, true
	}
	select {
	case conn := <-l.il.conns:
		return conn, true
	case <-l.il.done:
		return nil, false
	case <-l.done:
		return nil, false
	case <-l.h.done:
		return nil, false
	}
}
