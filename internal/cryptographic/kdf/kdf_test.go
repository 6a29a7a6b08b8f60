package kdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSessionKeysDeterministic(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")

	a, err := DeriveSessionKeys(secret)
	require.NoError(t, err)
	b, err := DeriveSessionKeys(secret)
	require.NoError(t, err)

	// Both sides of a handshake feed the same shared secret in and must get
	// identical keying material out.
	assert.Equal(t, a, b)
}

func TestDirectionKeysDiffer(t *testing.T) {
	keys, err := DeriveSessionKeys([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	assert.NotEqual(t, keys.InitiatorToResponder, keys.ResponderToInitiator)
}

func TestDistinctSecretsDistinctKeys(t *testing.T) {
	a, err := DeriveSessionKeys([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	b, err := DeriveSessionKeys([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	assert.NotEqual(t, a.InitiatorToResponder, b.InitiatorToResponder)
}

func TestZero(t *testing.T) {
	keys, err := DeriveSessionKeys([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	keys.Zero()
	assert.Equal(t, [DirectionKeySize]byte{}, keys.InitiatorToResponder)
	assert.Equal(t, [DirectionKeySize]byte{}, keys.ResponderToInitiator)
}
