package dh

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the size of X25519 public keys, private keys and shared secrets.
const KeySize = 32

// ErrZeroSharedSecret is returned when key agreement yields the all-zero
// point, meaning the peer supplied a low-order public key.
var ErrZeroSharedSecret = errors.New("dh: shared secret is the zero point")

// EphemeralKeyPair is a freshly generated X25519 key pair. The private half
// must be destroyed as soon as the shared secret has been consumed.
type EphemeralKeyPair struct {
	priv [KeySize]byte
	pub  [KeySize]byte
}

// NewEphemeralKeyPair generates a new X25519 key pair.
func NewEphemeralKeyPair() (*EphemeralKeyPair, error) {
	var kp EphemeralKeyPair
	if _, err := rand.Read(kp.priv[:]); err != nil {
		return nil, fmt.Errorf("dh: generate private key: %w", err)
	}
	pub, err := curve25519.X25519(kp.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("dh: derive public key: %w", err)
	}
	copy(kp.pub[:], pub)
	return &kp, nil
}

func (kp *EphemeralKeyPair) Public() []byte {
	pub := make([]byte, KeySize)
	copy(pub, kp.pub[:])
	return pub
}

// SharedSecret performs X25519 with the peer's public key. The all-zero
// output is rejected per RFC 7748 contributory behavior.
func (kp *EphemeralKeyPair) SharedSecret(peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != KeySize {
		return nil, fmt.Errorf("dh: peer public key is %d bytes, want %d", len(peerPublic), KeySize)
	}
	secret, err := curve25519.X25519(kp.priv[:], peerPublic)
	if err != nil {
		return nil, fmt.Errorf("dh: key agreement: %w", err)
	}
	var zero [KeySize]byte
	if subtle.ConstantTimeCompare(secret, zero[:]) == 1 {
		return nil, ErrZeroSharedSecret
	}
	return secret, nil
}

// Zero wipes the private key. Safe to call more than once.
func (kp *EphemeralKeyPair) Zero() {
	for i := range kp.priv {
		kp.priv[i] = 0
	}
}

// ZeroBytes wipes a byte slice in place.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
