// Package auth carries the authentication and encryption strategy applied to
// a socket's connections.
//
// Two mechanisms exist. Plain performs no authentication and no encryption.
// Curve authenticates and encrypts the connection handshake with curve25519
// public-key cryptography; this package only validates and transports the
// key material, the handshake itself is run by the engine.
package auth

// MechanismKind discriminates the Mechanism variants.
type MechanismKind uint8

const (
	// PlainKind is the no-security mechanism.
	PlainKind MechanismKind = iota
	// CurveKind is the curve25519 public-key mechanism.
	CurveKind
)

// String returns the kind's configuration name.
func (k MechanismKind) String() string {
	if k == CurveKind {
		return "secure"
	}
	return "plain"
}

// Mechanism describes how a socket authenticates its connections. The zero
// value is the Plain mechanism. Mechanisms are immutable values validated at
// construction; sockets using different mechanisms refuse to talk to each
// other.
type Mechanism struct {
	kind   MechanismKind
	public Key
	secret Key
	server Key
}

// Plain returns the mechanism that applies no authentication or encryption.
func Plain() Mechanism {
	return Mechanism{kind: PlainKind}
}

// Secure returns the curve mechanism with the socket's own keypair. A socket
// that connects (rather than binds) must also present the server's public
// key; see SecureWithServer.
func Secure(public, secret Key) Mechanism {
	return Mechanism{kind: CurveKind, public: public, secret: secret}
}

// SecureWithServer returns the curve mechanism for a connecting socket,
// carrying the remote server's public key alongside the socket's own keypair.
func SecureWithServer(public, secret, server Key) Mechanism {
	return Mechanism{kind: CurveKind, public: public, secret: secret, server: server}
}

// Kind returns the mechanism variant.
func (m Mechanism) Kind() MechanismKind { return m.kind }

// IsSecure reports whether the curve mechanism is in use.
func (m Mechanism) IsSecure() bool { return m.kind == CurveKind }

// Keys returns the socket's own keypair. Both are zero for Plain.
func (m Mechanism) Keys() (public, secret Key) { return m.public, m.secret }

// ServerKey returns the configured remote server key and whether one is set.
func (m Mechanism) ServerKey() (Key, bool) { return m.server, !m.server.IsZero() }
