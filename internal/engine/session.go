package engine

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/multierr"
)

// Session is the process-wide context sockets attach to. It owns the inproc
// switchboard, so inproc endpoints only rendez-vous between sockets sharing a
// session. Most programs use the Global session implicitly.
//
// A session tears down at most once: Close releases every attached socket
// first, then retires the switchboard. Closing an already-closed session is a
// no-op.
type Session struct {
	mu      sync.Mutex
	inproc  map[string]*inprocListener
	handles map[*Handle]struct{}
	closed  bool
}

// NewSession returns a fresh, independent session.
func NewSession() *Session {
	return &Session{
		inproc:  make(map[string]*inprocListener),
		handles: make(map[*Handle]struct{}),
	}
}

var (
	globalOnce    sync.Once
	globalSession *Session
)

// Global returns the shared process-wide session, creating it on first use.
func Global() *Session {
	globalOnce.Do(func() {
		globalSession = NewSession()
	})
	return globalSession
}

// Close releases every socket still attached to the session, unblocking any
// thread waiting inside their send or recv, then retires the session.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := make([]*Handle, 0, len(s.handles))
	for h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	var err error
	for _, h := range handles {
		err = multierr.Append(err, h.Close())
	}
	return err
}

func (s *Session) attach(h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("engine: session closed: %w", ErrTerminated)
	}
	s.handles[h] = struct{}{}
	return nil
}

func (s *Session) detach(h *Handle) {
	s.mu.Lock()
	delete(s.handles, h)
	s.mu.Unlock()
}

// inprocListener is one bound inproc name. Connections are synthesized with
// net.Pipe, so inproc peers run through exactly the same peer machinery as
// network ones.
type inprocListener struct {
	name  string
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func (il *inprocListener) close() {
	il.once.Do(func() { close(il.done) })
}

func (s *Session) bindInproc(name string) (*inprocListener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("engine: session closed: %w", ErrTerminated)
	}
	if _, taken := s.inproc[name]; taken {
		return nil, fmt.Errorf("engine: inproc://%s already bound", name)
	}
	il := &inprocListener{
		name:  name,
		conns: make(chan net.Conn, 128),
		done:  make(chan struct{}),
	}
	s.inproc[name] = il
	return il, nil
}

func (s *Session) releaseInproc(name string) {
	s.mu.Lock()
	if il, ok := s.inproc[name]; ok {
		il.close()
		delete(s.inproc, name)
	}
	s.mu.Unlock()
}

// connectInproc synthesizes a pipe to the socket bound at name. Connecting
// before anything is bound fails; dialers retry, which preserves the lazy
// connect semantics of the other transports.
func (s *Session) connectInproc(name string) (net.Conn, error) {
	s.mu.Lock()
	il, ok := s.inproc[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("engine: inproc://%s not bound", name)
	}
	local, remote := net.Pipe()
	select {
	case il.conns <- remote:
		return local, nil
	case <-il.done:
		local.Close()
		remote.Close()
		return nil, fmt.Errorf("engine: inproc://%s no longer bound", name)
	default:
		local.Close()
		remote.Close()
		return nil, fmt.Errorf("engine: inproc://%s accept queue full", name)
	}
}
