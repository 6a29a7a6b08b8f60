// Package identity models onion-service identities: the short service id
// string, the ed25519 verifying key it encodes, and the long-term signing
// keypair owned by the service operator.
package identity

import (
	"crypto/ed25519"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// IDLength is the length of a v3 onion service id (without ".onion").
	IDLength = 56

	version = 0x03
)

var (
	ErrInvalidID = errors.New("identity: invalid onion service id")

	checksumPrefix = []byte(".onion checksum")
	encoding       = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// Identity is an onion service identity: the service id string plus the
// long-term verifying key it is derived from. Immutable once constructed.
type Identity struct {
	id     string
	public ed25519.PublicKey
}

func checksum(pub ed25519.PublicKey) []byte {
	h := sha3.New256()
	h.Write(checksumPrefix)
	h.Write(pub)
	h.Write([]byte{version})
	return h.Sum(nil)[:2]
}

// FromPublicKey derives the onion service id for a verifying key.
func FromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	if len(pub) != ed25519.PublicKeySize {
		return Identity{}, fmt.Errorf("identity: public key is %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}
	blob := make([]byte, 0, ed25519.PublicKeySize+3)
	blob = append(blob, pub...)
	blob = append(blob, checksum(pub)...)
	blob = append(blob, version)

	public := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(public, pub)
	return Identity{
		id:     strings.ToLower(encoding.EncodeToString(blob)),
		public: public,
	}, nil
}

// Parse decodes a service id (with or without the ".onion" suffix), recovers
// the embedded verifying key and validates the checksum and version byte.
func Parse(id string) (Identity, error) {
	id = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(id), ".onion"))
	if len(id) != IDLength {
		return Identity{}, ErrInvalidID
	}
	blob, err := encoding.DecodeString(strings.ToUpper(id))
	if err != nil {
		return Identity{}, ErrInvalidID
	}
	if len(blob) != ed25519.PublicKeySize+3 || blob[len(blob)-1] != version {
		return Identity{}, ErrInvalidID
	}
	pub := ed25519.PublicKey(blob[:ed25519.PublicKeySize])
	sum := blob[ed25519.PublicKeySize : ed25519.PublicKeySize+2]
	want := checksum(pub)
	if sum[0] != want[0] || sum[1] != want[1] {
		return Identity{}, ErrInvalidID
	}
	return Identity{id: id, public: pub}, nil
}

// ID returns the service id string (without ".onion").
func (i Identity) ID() string {
	return i.id
}

// Hostname returns the full onion hostname.
func (i Identity) Hostname() string {
	return i.id + ".onion"
}

// PublicKey returns the verifying key embedded in the id.
func (i Identity) PublicKey() ed25519.PublicKey {
	return i.public
}

// Equal reports whether both the id string and the key match.
func (i Identity) Equal(other Identity) bool {
	return i.id == other.id && i.public.Equal(other.public)
}

// IsZero reports whether the identity is the zero value.
func (i Identity) IsZero() bool {
	return i.id == "" && len(i.public) == 0
}

func (i Identity) String() string {
	return i.id
}

// Matches verifies that id is the onion id derived from pub, i.e. that the
// peer presenting pub actually owns the id it claims.
func Matches(id string, pub ed25519.PublicKey) bool {
	derived, err := FromPublicKey(pub)
	if err != nil {
		return false
	}
	return derived.id == strings.ToLower(strings.TrimSuffix(id, ".onion"))
}
