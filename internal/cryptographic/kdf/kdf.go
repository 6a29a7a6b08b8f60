package kdf

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// InfoLabel is the fixed domain-separation label for session key derivation.
// It matches the label the wire protocol was deployed with and is not
// user-tunable.
const InfoLabel = "encryption"

// DirectionKeySize is the size of each directional session key.
const DirectionKeySize = 32

// SessionKeys is the keying material derived from one handshake: one key per
// direction. Both peers derive identical material; which key encrypts which
// direction is decided by role.
type SessionKeys struct {
	InitiatorToResponder [DirectionKeySize]byte
	ResponderToInitiator [DirectionKeySize]byte
}

// HKDF expands secret into buffer using HKDF-SHA256.
func HKDF(secret, salt, info, buffer []byte) (int, error) {
	h := hkdf.New(sha256.New, secret, salt, info)
	return io.ReadFull(h, buffer)
}

// DeriveSessionKeys derives the two directional session keys from a shared
// secret. Salt is empty and info is the fixed label, matching the wire
// protocol.
func DeriveSessionKeys(sharedSecret []byte) (*SessionKeys, error) {
	buffer := make([]byte, 2*DirectionKeySize)
	if _, err := HKDF(sharedSecret, nil, []byte(InfoLabel), buffer); err != nil {
		return nil, fmt.Errorf("kdf: derive session keys: %w", err)
	}

	var keys SessionKeys
	copy(keys.InitiatorToResponder[:], buffer[:DirectionKeySize])
	copy(keys.ResponderToInitiator[:], buffer[DirectionKeySize:])
	for i := range buffer {
		buffer[i] = 0
	}
	return &keys, nil
}

// Zero wipes both directional keys.
func (k *SessionKeys) Zero() {
	for i := range k.InitiatorToResponder {
		k.InitiatorToResponder[i] = 0
	}
	for i := range k.ResponderToInitiator {
		k.ResponderToInitiator[i] = 0
	}
}
