package auth

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the binary size of curve key material in bytes.
const KeySize = 32

// z85KeySize is the length of a Z85-armored key string.
const z85KeySize = 40

// ErrInvalidKey is returned for key text of the wrong length or with bytes
// outside the Z85 alphabet.
var ErrInvalidKey = errors.New("invalid key")

// Key is a single piece of curve key material, held in both its binary and
// Z85 text forms. Keys are immutable values.
type Key struct {
	text string
	bin  [KeySize]byte
}

// ParseKey validates a 40-character Z85 key string.
func ParseKey(text string) (Key, error) {
	if len(text) != z85KeySize {
		return Key{}, fmt.Errorf("key has %d chars, want %d: %w", len(text), z85KeySize, ErrInvalidKey)
	}
	raw, err := z85Decode(text)
	if err != nil {
		return Key{}, err
	}
	var k Key
	k.text = text
	copy(k.bin[:], raw)
	return k, nil
}

// KeyFromBytes builds a Key from 32 bytes of binary material.
func KeyFromBytes(raw []byte) (Key, error) {
	if len(raw) != KeySize {
		return Key{}, fmt.Errorf("key has %d bytes, want %d: %w", len(raw), KeySize, ErrInvalidKey)
	}
	text, err := z85Encode(raw)
	if err != nil {
		return Key{}, err
	}
	var k Key
	k.text = text
	copy(k.bin[:], raw)
	return k, nil
}

// String returns the Z85 text form.
func (k Key) String() string { return k.text }

// Bytes returns the 32-byte binary form.
func (k Key) Bytes() [KeySize]byte { return k.bin }

// IsZero reports whether k is the zero "no key" value.
func (k Key) IsZero() bool { return k.text == "" }

// NewCurveKeypair generates a fresh curve25519 keypair from the system's
// entropy source.
func NewCurveKeypair() (public, secret Key, err error) {
	var raw [KeySize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return Key{}, Key{}, fmt.Errorf("auth: generate secret key: %w", err)
	}
	secret, err = KeyFromBytes(raw[:])
	if err != nil {
		return Key{}, Key{}, err
	}
	public, err = PublicFromSecret(secret)
	if err != nil {
		return Key{}, Key{}, err
	}
	return public, secret, nil
}

// PublicFromSecret derives the public key matching a curve25519 secret key.
func PublicFromSecret(secret Key) (Key, error) {
	bin := secret.Bytes()
	pub, err := curve25519.X25519(bin[:], curve25519.Basepoint)
	if err != nil {
		return Key{}, fmt.Errorf("auth: derive public key: %w", err)
	}
	return KeyFromBytes(pub)
}
