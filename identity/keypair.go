package identity

import (
	"crypto/ed25519"
	"crypto/sha512"
	"fmt"

	"voynich/internal/cryptographic/signature"
)

// KeyPair is the long-term signing keypair of an onion service. It holds the
// key in tor's expanded form so that keys imported from a hidden-service
// directory and freshly generated keys behave identically. The key signs
// handshake transcripts only; it never encrypts payloads.
type KeyPair struct {
	expanded [signature.ExpandedKeySize]byte
	identity Identity
}

// NewKeyPair generates a fresh long-term keypair.
func NewKeyPair() (*KeyPair, error) {
	_, priv, err := signature.NewEd25519Keypair()
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	return KeyPairFromSeed(priv.Seed())
}

// KeyPairFromSeed expands a standard 32-byte ed25519 seed.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return KeyPairFromExpanded(h[:])
}

// KeyPairFromExpanded wraps a 64-byte expanded secret key, the form tor
// stores in hs_ed25519_secret_key and returns from ADD_ONION.
func KeyPairFromExpanded(expanded []byte) (*KeyPair, error) {
	pub, err := signature.PublicFromExpanded(expanded)
	if err != nil {
		return nil, err
	}
	id, err := FromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	kp := &KeyPair{identity: id}
	copy(kp.expanded[:], expanded)
	return kp, nil
}

// Sign signs a handshake transcript digest with the long-term key.
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	return signature.SignExpanded(kp.expanded[:], message)
}

// Public returns the verifying key.
func (kp *KeyPair) Public() ed25519.PublicKey {
	return kp.identity.PublicKey()
}

// Identity returns the onion identity for this keypair.
func (kp *KeyPair) Identity() Identity {
	return kp.identity
}

// Expanded returns a copy of the expanded secret key, for handing to the tor
// control port or the onion-service store.
func (kp *KeyPair) Expanded() []byte {
	out := make([]byte, signature.ExpandedKeySize)
	copy(out, kp.expanded[:])
	return out
}

// Zero wipes the secret key material.
func (kp *KeyPair) Zero() {
	for i := range kp.expanded {
		kp.expanded[i] = 0
	}
}
