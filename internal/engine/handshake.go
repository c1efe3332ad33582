package engine

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"time"

	"golang.org/x/crypto/nacl/box"

	"github.com/strand-protocol/strandsock/pkg/auth"
)

// The handshake runs synchronously on the peer's goroutine before the
// read/write loops start, bounded by the connect timeout.
//
// Both sides exchange a HELLO frame:
//
//	[1B kind][1B mechanism kind][32B curve public key, zeroed for plain]
//
// Incompatible patterns or mismatched mechanisms abort the connection. Under
// the curve mechanism the binder then challenges the initiator to prove it
// holds the secret matching its advertised public key: the binder seals a
// random cookie to the initiator's public key, and the initiator must return
// the opened cookie. The initiator in turn verifies the binder's advertised
// key against its configured server key before trusting the challenge.

const helloSize = 2 + auth.KeySize

func (p *peer) handshake(initiator bool) error {
	deadline := time.Now().Add(p.h.opts.ConnectTimeout)
	if err := p.conn.SetDeadline(deadline); err != nil {
		return err
	}
	defer p.conn.SetDeadline(time.Time{})

	mech := p.h.opts.Mechanism

	hello := make([]byte, helloSize)
	hello[0] = byte(p.h.opts.Kind)
	hello[1] = byte(mech.Kind())
	if mech.IsSecure() {
		public, _ := mech.Keys()
		bin := public.Bytes()
		copy(hello[2:], bin[:])
	}
	// The initiator speaks first and the binder answers; inproc pipes are
	// unbuffered, so simultaneous writes would deadlock.
	var op byte
	var payload []byte
	var err error
	if initiator {
		if err = writeFrame(p.conn, opHello, hello); err != nil {
			return fmt.Errorf("engine: send hello: %w", err)
		}
		if op, payload, err = readFrame(p.conn); err != nil {
			return fmt.Errorf("engine: read hello: %w", err)
		}
	} else {
		if op, payload, err = readFrame(p.conn); err != nil {
			return fmt.Errorf("engine: read hello: %w", err)
		}
		if err = writeFrame(p.conn, opHello, hello); err != nil {
			return fmt.Errorf("engine: send hello: %w", err)
		}
	}
	if op != opHello || len(payload) != helloSize {
		return fmt.Errorf("engine: malformed hello (op %#x, %d bytes)", op, len(payload))
	}
	remoteKind := Kind(payload[0])
	remoteMech := auth.MechanismKind(payload[1])
	if !p.h.opts.Kind.CompatibleWith(remoteKind) {
		return fmt.Errorf("engine: %s socket cannot peer with %s", p.h.opts.Kind, remoteKind)
	}
	if remoteMech != mech.Kind() {
		return fmt.Errorf("engine: mechanism mismatch: local %s, remote %s", mech.Kind(), remoteMech)
	}
	if !mech.IsSecure() {
		return nil
	}

	var remotePublic [auth.KeySize]byte
	copy(remotePublic[:], payload[2:])
	if initiator {
		return p.proveIdentity(mech, remotePublic)
	}
	return p.challengeIdentity(mech, remotePublic)
}

// challengeIdentity is the binder side of the curve exchange.
func (p *peer) challengeIdentity(mech auth.Mechanism, remotePublic [auth.KeySize]byte) error {
	var cookie [32]byte
	var nonce [24]byte
	if _, err := rand.Read(cookie[:]); err != nil {
		return fmt.Errorf("engine: generate cookie: %w", err)
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("engine: generate nonce: %w", err)
	}
	_, secret := mech.Keys()
	secretBin := secret.Bytes()
	sealed := box.Seal(nonce[:], cookie[:], &nonce, &remotePublic, &secretBin)
	if err := writeFrame(p.conn, opChallenge, sealed); err != nil {
		return fmt.Errorf("engine: send challenge: %w", err)
	}

	op, payload, err := readFrame(p.conn)
	if err != nil {
		return fmt.Errorf("engine: read challenge response: %w", err)
	}
	if op != opResponse {
		return fmt.Errorf("engine: expected challenge response, got op %#x", op)
	}
	if subtle.ConstantTimeCompare(payload, cookie[:]) != 1 {
		return fmt.Errorf("engine: curve authentication failed")
	}
	return nil
}

// proveIdentity is the initiator side of the curve exchange.
func (p *peer) proveIdentity(mech auth.Mechanism, remotePublic [auth.KeySize]byte) error {
	if server, ok := mech.ServerKey(); ok {
		expected := server.Bytes()
		if subtle.ConstantTimeCompare(expected[:], remotePublic[:]) != 1 {
			return fmt.Errorf("engine: server key mismatch")
		}
	}

	op, payload, err := readFrame(p.conn)
	if err != nil {
		return fmt.Errorf("engine: read challenge: %w", err)
	}
	if op != opChallenge || len(payload) < 24 {
		return fmt.Errorf("engine: malformed challenge (op %#x, %d bytes)", op, len(payload))
	}
	var nonce [24]byte
	copy(nonce[:], payload[:24])
	_, secret := mech.Keys()
	secretBin := secret.Bytes()
	cookie, ok := box.Open(nil, payload[24:], &nonce, &remotePublic, &secretBin)
	if !ok {
		return fmt.Errorf("engine: cannot open challenge")
	}
	if err := writeFrame(p.conn, opResponse, cookie); err != nil {
		return fmt.Errorf("engine: send challenge response: %w", err)
	}
	return nil
}
