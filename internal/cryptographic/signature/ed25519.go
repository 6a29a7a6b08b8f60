package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

// ExpandedKeySize is the size of an expanded ed25519 secret key: the clamped
// scalar followed by the signing prefix. Tor stores hidden-service keys in
// this form, which cannot be fed back through crypto/ed25519.
const ExpandedKeySize = 64

func NewEd25519Keypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// PublicFromExpanded recovers the verifying key from an expanded secret key.
func PublicFromExpanded(expanded []byte) (ed25519.PublicKey, error) {
	a, _, err := splitExpanded(expanded)
	if err != nil {
		return nil, err
	}
	A := (&edwards25519.Point{}).ScalarBaseMult(a)
	return ed25519.PublicKey(A.Bytes()), nil
}

// SignExpanded produces a standard ed25519 signature from an expanded secret
// key (RFC 8032 with the scalar and prefix supplied directly).
func SignExpanded(expanded, message []byte) ([]byte, error) {
	a, prefix, err := splitExpanded(expanded)
	if err != nil {
		return nil, err
	}
	A := (&edwards25519.Point{}).ScalarBaseMult(a)

	h := sha512.New()
	h.Write(prefix)
	h.Write(message)
	var rDigest [64]byte
	h.Sum(rDigest[:0])
	r, err := edwards25519.NewScalar().SetUniformBytes(rDigest[:])
	if err != nil {
		return nil, fmt.Errorf("signature: reduce r: %w", err)
	}
	R := (&edwards25519.Point{}).ScalarBaseMult(r)

	h.Reset()
	h.Write(R.Bytes())
	h.Write(A.Bytes())
	h.Write(message)
	var kDigest [64]byte
	h.Sum(kDigest[:0])
	k, err := edwards25519.NewScalar().SetUniformBytes(kDigest[:])
	if err != nil {
		return nil, fmt.Errorf("signature: reduce k: %w", err)
	}

	s := edwards25519.NewScalar().MultiplyAdd(k, a, r)

	sig := make([]byte, 0, ed25519.SignatureSize)
	sig = append(sig, R.Bytes()...)
	sig = append(sig, s.Bytes()...)
	return sig, nil
}

func splitExpanded(expanded []byte) (*edwards25519.Scalar, []byte, error) {
	if len(expanded) != ExpandedKeySize {
		return nil, nil, fmt.Errorf("signature: expanded key is %d bytes, want %d", len(expanded), ExpandedKeySize)
	}
	a, err := edwards25519.NewScalar().SetBytesWithClamping(expanded[:32])
	if err != nil {
		return nil, nil, fmt.Errorf("signature: invalid scalar: %w", err)
	}
	return a, expanded[32:], nil
}
