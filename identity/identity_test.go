package identity

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Known-answer vector for the v3 onion address format: a fixed 32-byte key
// and the address it encodes to.
var (
	vectorKey = ed25519.PublicKey{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
		0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18,
		0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20,
	}
	vectorID = "aebagbafaydqqcikbmga2dqpcaireeyuculbogazdinryhi6d4qcmeqd"
)

func TestFromPublicKeyVector(t *testing.T) {
	id, err := FromPublicKey(vectorKey)
	require.NoError(t, err)
	assert.Equal(t, vectorID, id.ID())
	assert.Equal(t, vectorID+".onion", id.Hostname())
}

func TestParseRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	id, err := FromPublicKey(pub)
	require.NoError(t, err)
	require.Len(t, id.ID(), IDLength)

	for _, in := range []string{
		id.ID(),
		id.Hostname(),
		"  " + id.ID() + "\n",
	} {
		parsed, err := Parse(in)
		require.NoError(t, err, "input %q", in)
		assert.True(t, id.Equal(parsed))
		assert.Equal(t, pub, parsed.PublicKey())
	}
}

func TestParseRejectsCorruption(t *testing.T) {
	id, err := FromPublicKey(vectorKey)
	require.NoError(t, err)

	// Flip one character; either base32 decoding or the checksum fails.
	raw := []byte(id.ID())
	if raw[10] == 'a' {
		raw[10] = 'b'
	} else {
		raw[10] = 'a'
	}
	_, err = Parse(string(raw))
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestParseRejectsBadInput(t *testing.T) {
	for _, in := range []string{
		"",
		"tooshort",
		"aebagbafaydqqcikbmga2dqpcaireeyuculbogazdinryhi6d4qcmeq",    // 55 chars
		"aebagbafaydqqcikbmga2dqpcaireeyuculbogazdinryhi6d4qcmeqdd",  // 57 chars
		"1ebagbafaydqqcikbmga2dqpcaireeyuculbogazdinryhi6d4qcmeqd",   // invalid base32
	} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalidID, "input %q", in)
	}
}

func TestEqual(t *testing.T) {
	a, err := FromPublicKey(vectorKey)
	require.NoError(t, err)
	b, err := FromPublicKey(vectorKey)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	c, err := FromPublicKey(pub)
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
	assert.False(t, a.IsZero())
	assert.True(t, Identity{}.IsZero())
}

func TestMatches(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	id, err := FromPublicKey(pub)
	require.NoError(t, err)

	assert.True(t, Matches(id.ID(), pub))
	assert.True(t, Matches(id.Hostname(), pub))

	other, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	assert.False(t, Matches(id.ID(), other))
	assert.False(t, Matches(id.ID(), pub[:16]))
}
