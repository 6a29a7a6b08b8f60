package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expandSeed(seed []byte) []byte {
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:]
}

func TestSignExpandedMatchesStdlib(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	priv := ed25519.NewKeyFromSeed(seed)
	expanded := expandSeed(seed)

	pub, err := PublicFromExpanded(expanded)
	require.NoError(t, err)
	assert.Equal(t, priv.Public(), pub)

	// Ed25519 is deterministic: the expanded-key path must produce the
	// exact signature crypto/ed25519 produces from the seed.
	message := []byte("the quick brown onion")
	sig, err := SignExpanded(expanded, message)
	require.NoError(t, err)
	assert.Equal(t, Sign(priv, message), sig)
	assert.True(t, Verify(pub, message, sig))
}

func TestVerifyRejectsBadInput(t *testing.T) {
	pub, priv, err := NewEd25519Keypair()
	require.NoError(t, err)
	sig := Sign(priv, []byte("msg"))

	assert.False(t, Verify(pub, []byte("other"), sig))
	assert.False(t, Verify(pub[:16], []byte("msg"), sig))
	assert.False(t, Verify(pub, []byte("msg"), sig[:32]))
}

func TestSignExpandedRejectsBadLength(t *testing.T) {
	_, err := SignExpanded(make([]byte, 32), []byte("msg"))
	assert.Error(t, err)
	_, err = PublicFromExpanded(make([]byte, 96))
	assert.Error(t, err)
}
