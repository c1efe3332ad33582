package engine

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/strand-protocol/strandsock/pkg/auth"
	"github.com/strand-protocol/strandsock/pkg/endpoint"
	"github.com/strand-protocol/strandsock/pkg/msg"
)

const testTimeout = 5 * time.Second

func newTestHandle(t *testing.T, sess *Session, opts Options) *Handle {
	t.Helper()
	h, err := New(sess, opts)
	if err != nil {
		t.Fatalf("New(%s): %v", opts.Kind, err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestInprocClientServer(t *testing.T) {
	sess := NewSession()
	defer sess.Close()

	server := newTestHandle(t, sess, Options{Kind: ServerKind})
	ep, err := server.Bind(endpoint.MustParse("inproc://ping-pong"))
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	client := newTestHandle(t, sess, Options{Kind: ClientKind})
	if err := client.Connect(ep); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := client.Send(msg.NewString("ping"), testTimeout, true); err != nil {
		t.Fatalf("client send: %v", err)
	}

	got, err := server.Recv(testTimeout, true)
	if err != nil {
		t.Fatalf("server recv: %v", err)
	}
	if got.String() != "ping" {
		t.Errorf("server got %q, want ping", got.String())
	}
	id, ok := got.RoutingID()
	if !ok {
		t.Fatal("server message has no routing id")
	}

	reply := msg.NewString("pong")
	reply.SetRoutingID(id)
	if err := server.Send(reply, testTimeout, true); err != nil {
		t.Fatalf("server send: %v", err)
	}

	back, err := client.Recv(testTimeout, true)
	if err != nil {
		t.Fatalf("client recv: %v", err)
	}
	if back.String() != "pong" {
		t.Errorf("client got %q, want pong", back.String())
	}
}

func TestRoutedSendUnknownID(t *testing.T) {
	sess := NewSession()
	defer sess.Close()

	server := newTestHandle(t, sess, Options{Kind: ServerKind})
	if _, err := server.Bind(endpoint.MustParse("inproc://routed")); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	m := msg.NewString("orphan")
	m.SetRoutingID(12345)
	start := time.Now()
	err := server.Send(m, testTimeout, true)
	if !errors.Is(err, ErrHostUnreachable) {
		t.Fatalf("Send = %v, want ErrHostUnreachable", err)
	}
	if time.Since(start) > time.Second {
		t.Error("unknown routing id blocked instead of failing fast")
	}

	// A message without any routing id fails the same way.
	if err := server.Send(msg.NewString("x"), testTimeout, true); !errors.Is(err, ErrHostUnreachable) {
		t.Fatalf("Send = %v, want ErrHostUnreachable", err)
	}
}

func TestMuteStateWouldBlock(t *testing.T) {
	sess := NewSession()
	defer sess.Close()

	client := newTestHandle(t, sess, Options{Kind: ClientKind})
	if err := client.Send(msg.NewString("x"), 0, false); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Send = %v, want ErrWouldBlock", err)
	}
	if _, err := client.Recv(0, false); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Recv = %v, want ErrWouldBlock", err)
	}

	// With a short timeout the call waits, then reports WouldBlock.
	start := time.Now()
	err := client.Send(msg.NewString("x"), 50*time.Millisecond, true)
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Send = %v, want ErrWouldBlock", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("timed send returned before its deadline")
	}
}

func TestCloseUnblocksRecv(t *testing.T) {
	sess := NewSession()
	defer sess.Close()

	client := newTestHandle(t, sess, Options{Kind: ClientKind})
	done := make(chan error, 1)
	go func() {
		_, err := client.Recv(0, true)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	client.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTerminated) {
			t.Fatalf("Recv = %v, want ErrTerminated", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("Recv still blocked after Close")
	}
}

func TestSessionCloseReleasesHandles(t *testing.T) {
	sess := NewSession()
	h, err := New(sess, Options{Kind: ClientKind})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("session Close: %v", err)
	}
	if _, err := h.Recv(0, false); !errors.Is(err, ErrTerminated) {
		t.Fatalf("Recv = %v, want ErrTerminated", err)
	}
	// Second teardown is a no-op.
	if err := sess.Close(); err != nil {
		t.Fatalf("second session Close: %v", err)
	}
	// New sockets cannot attach to a closed session.
	if _, err := New(sess, Options{Kind: ClientKind}); !errors.Is(err, ErrTerminated) {
		t.Fatalf("New on closed session = %v, want ErrTerminated", err)
	}
}

// waitPeerCount polls until the handle has exactly n live peers.
func waitPeerCount(t *testing.T, h *Handle, n int) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for h.PeerCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("handle has %d peers, want %d", h.PeerCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

// rawDial connects to ep and completes a plain client HELLO exchange, giving
// the test a connection whose frame traffic it controls byte by byte.
func rawDial(t *testing.T, ep endpoint.Endpoint) net.Conn {
	t.Helper()
	network, addr := ep.NetworkAddr()
	conn, err := net.Dial(network, addr)
	if err != nil {
		t.Fatalf("dial %s: %v", ep, err)
	}
	t.Cleanup(func() { conn.Close() })

	hello := make([]byte, helloSize)
	hello[0] = byte(ClientKind)
	hello[1] = byte(auth.PlainKind)
	if err := writeFrame(conn, opHello, hello); err != nil {
		t.Fatalf("send hello: %v", err)
	}
	if op, _, err := readFrame(conn); err != nil || op != opHello {
		t.Fatalf("read hello: op %#x, err %v", op, err)
	}
	return conn
}

func TestHeartbeatDropsSilentPeer(t *testing.T) {
	sess := NewSession()
	defer sess.Close()

	server := newTestHandle(t, sess, Options{
		Kind:              ServerKind,
		HeartbeatInterval: 50 * time.Millisecond,
		HeartbeatTimeout:  50 * time.Millisecond,
	})
	ep, err := server.Bind(endpoint.MustParse("tcp://127.0.0.1:*"))
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	conn := rawDial(t, ep)
	waitPeerCount(t, server, 1)

	// While the peer answers pings it stays registered past the idle
	// limit.
	for pongs := 0; pongs < 3; {
		if err := conn.SetReadDeadline(time.Now().Add(testTimeout)); err != nil {
			t.Fatalf("SetReadDeadline: %v", err)
		}
		op, _, err := readFrame(conn)
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if op != opPing {
			continue
		}
		if err := writeFrame(conn, opPong, nil); err != nil {
			t.Fatalf("send pong: %v", err)
		}
		pongs++
	}
	if server.PeerCount() != 1 {
		t.Fatal("responsive peer dropped")
	}

	// Gone silent, the peer must be torn down once interval+timeout of
	// quiet elapses.
	waitPeerCount(t, server, 0)
}

func TestDialerReconnectsAfterRebind(t *testing.T) {
	sess := NewSession()
	defer sess.Close()

	first := newTestHandle(t, sess, Options{Kind: ServerKind})
	if _, err := first.Bind(endpoint.MustParse("inproc://rebind")); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	client := newTestHandle(t, sess, Options{Kind: ClientKind})
	if err := client.Connect(endpoint.MustParse("inproc://rebind")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitPeerCount(t, client, 1)

	if err := first.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	waitPeerCount(t, client, 0)

	second := newTestHandle(t, sess, Options{Kind: ServerKind})
	if _, err := second.Bind(endpoint.MustParse("inproc://rebind")); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	waitPeerCount(t, second, 1)

	if err := client.Send(msg.NewString("back"), testTimeout, true); err != nil {
		t.Fatalf("Send after reconnect: %v", err)
	}
	if got, err := second.Recv(testTimeout, true); err != nil || got.String() != "back" {
		t.Fatalf("Recv after reconnect = (%q, %v)", got.String(), err)
	}
}

func TestDialerGivesUpAfterTTL(t *testing.T) {
	sess := NewSession()
	defer sess.Close()

	// A client-kind binder rejects every client handshake, so the dialer
	// keeps reaching a peer it can never register with.
	binder := newTestHandle(t, sess, Options{Kind: ClientKind})
	if _, err := binder.Bind(endpoint.MustParse("inproc://always-reject")); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	h := newTestHandle(t, sess, Options{
		Kind:         ClientKind,
		HeartbeatTTL: 150 * time.Millisecond,
	})
	d := &dialer{h: h, ep: endpoint.MustParse("inproc://always-reject"), done: make(chan struct{})}
	finished := make(chan struct{})
	go func() {
		d.run()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(testTimeout):
		t.Fatal("dialer still retrying past its ttl")
	}
	if h.PeerCount() != 0 {
		t.Errorf("rejected dialer registered %d peers", h.PeerCount())
	}
}

func TestConnectSecureWithoutServerKey(t *testing.T) {
	sess := NewSession()
	defer sess.Close()

	public, secret, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}
	h := newTestHandle(t, sess, Options{Kind: ClientKind, Mechanism: auth.Secure(public, secret)})
	if err := h.Connect(endpoint.MustParse("tcp://127.0.0.1:7070")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Connect = %v, want ErrInvalidInput", err)
	}
}

func handshakePair(t *testing.T, a, b Options) (errInitiator, errBinder error) {
	t.Helper()
	sess := NewSession()
	defer sess.Close()
	h1 := newTestHandle(t, sess, a)
	h2 := newTestHandle(t, sess, b)

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	p1, p2 := newPeer(h1, c1), newPeer(h2, c2)
	binderErr := make(chan error, 1)
	go func() { binderErr <- p2.handshake(false) }()
	errInitiator = p1.handshake(true)
	if errInitiator != nil {
		// Unblock the binder if it is still waiting on us.
		c1.Close()
	}
	errBinder = <-binderErr
	return errInitiator, errBinder
}

func TestHandshakeRejectsIncompatibleKinds(t *testing.T) {
	short := Options{Kind: ClientKind, ConnectTimeout: testTimeout}
	other := Options{Kind: ClientKind, ConnectTimeout: testTimeout}
	errI, errB := handshakePair(t, short, other)
	if errI == nil || errB == nil {
		t.Fatalf("client-client handshake accepted: initiator=%v binder=%v", errI, errB)
	}
}

func TestHandshakeRejectsMechanismMismatch(t *testing.T) {
	public, secret, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}
	errI, errB := handshakePair(t,
		Options{Kind: ClientKind, ConnectTimeout: testTimeout},
		Options{Kind: ServerKind, ConnectTimeout: testTimeout, Mechanism: auth.Secure(public, secret)},
	)
	if errI == nil || errB == nil {
		t.Fatalf("plain-secure handshake accepted: initiator=%v binder=%v", errI, errB)
	}
}

func TestCurveHandshake(t *testing.T) {
	serverPublic, serverSecret, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}
	clientPublic, clientSecret, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}

	errI, errB := handshakePair(t,
		Options{
			Kind:           ClientKind,
			ConnectTimeout: testTimeout,
			Mechanism:      auth.SecureWithServer(clientPublic, clientSecret, serverPublic),
		},
		Options{
			Kind:           ServerKind,
			ConnectTimeout: testTimeout,
			Mechanism:      auth.Secure(serverPublic, serverSecret),
		},
	)
	if errI != nil || errB != nil {
		t.Fatalf("curve handshake failed: initiator=%v binder=%v", errI, errB)
	}
}

func TestCurveHandshakeWrongServerKey(t *testing.T) {
	serverPublic, serverSecret, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}
	clientPublic, clientSecret, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}
	wrongPublic, _, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}

	errI, _ := handshakePair(t,
		Options{
			Kind:           ClientKind,
			ConnectTimeout: testTimeout,
			Mechanism:      auth.SecureWithServer(clientPublic, clientSecret, wrongPublic),
		},
		Options{
			Kind:           ServerKind,
			ConnectTimeout: testTimeout,
			Mechanism:      auth.Secure(serverPublic, serverSecret),
		},
	)
	if errI == nil {
		t.Fatal("initiator accepted a server with the wrong key")
	}
}
