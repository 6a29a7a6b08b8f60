package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSize
	Overhead  = chacha20poly1305.Overhead

	// DefaultPaddingBlockSize is the padding granularity applied to
	// plaintexts before encryption, hiding their exact length.
	DefaultPaddingBlockSize = 256

	lenPrefixSize = 4
	counterMax    = ^uint64(0)
)

var (
	// ErrNonceExhausted is returned when the per-direction counter would
	// wrap. The session must terminate before a nonce is ever reused.
	ErrNonceExhausted = errors.New("encryption: nonce counter exhausted")

	// ErrDecrypt covers authentication failure, malformed padding and
	// out-of-range plaintext lengths. Callers must treat it as fatal and
	// must not surface which of the three occurred to the peer.
	ErrDecrypt = errors.New("encryption: decryption failed")
)

// Channel encrypts or decrypts one direction of a session. The nonce is the
// frame counter serialized big-endian into the low bytes of the nonce,
// starting at zero and incremented once per successful operation. Both ends
// of a direction advance their counters in lockstep, so a replayed or
// reordered frame no longer matches the receiver's nonce and fails
// authentication.
type Channel struct {
	aead      cipher.AEAD
	counter   uint64
	exhausted bool
	block     int
}

// NewChannel creates a directional channel from a 32-byte key. The key slice
// may be wiped by the caller once NewChannel returns.
func NewChannel(key []byte, paddingBlock int) (*Channel, error) {
	if paddingBlock <= 0 {
		paddingBlock = DefaultPaddingBlockSize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}
	return &Channel{aead: aead, block: paddingBlock}, nil
}

func (c *Channel) nonce() []byte {
	n := make([]byte, NonceSize)
	binary.BigEndian.PutUint64(n[NonceSize-8:], c.counter)
	return n
}

func (c *Channel) advance() {
	if c.counter == counterMax {
		c.exhausted = true
		return
	}
	c.counter++
}

// Seal pads plaintext to the next block multiple and encrypts it under the
// current counter. It fails without emitting anything once the counter is
// exhausted.
func (c *Channel) Seal(plaintext []byte) ([]byte, error) {
	if c.exhausted {
		return nil, ErrNonceExhausted
	}
	padded, err := pad(plaintext, c.block)
	if err != nil {
		return nil, err
	}
	out := c.aead.Seal(nil, c.nonce(), padded, nil)
	for i := range padded {
		padded[i] = 0
	}
	c.advance()
	return out, nil
}

// Open authenticates and decrypts a ciphertext under the current counter and
// strips the padding. Any failure is fatal to the session.
func (c *Channel) Open(ciphertext []byte) ([]byte, error) {
	if c.exhausted {
		return nil, ErrNonceExhausted
	}
	padded, err := c.aead.Open(nil, c.nonce(), ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	plaintext, err := unpad(padded)
	if err != nil {
		return nil, err
	}
	c.advance()
	return plaintext, nil
}

// Counter returns the number of successful operations so far.
func (c *Channel) Counter() uint64 {
	return c.counter
}

// pad prepends the plaintext length and appends random bytes up to the next
// multiple of block.
func pad(plaintext []byte, block int) ([]byte, error) {
	raw := lenPrefixSize + len(plaintext)
	total := ((raw + block - 1) / block) * block
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf, uint32(len(plaintext)))
	copy(buf[lenPrefixSize:], plaintext)
	if _, err := io.ReadFull(rand.Reader, buf[raw:]); err != nil {
		return nil, fmt.Errorf("encryption: random padding: %w", err)
	}
	return buf, nil
}

func unpad(padded []byte) ([]byte, error) {
	if len(padded) < lenPrefixSize {
		return nil, ErrDecrypt
	}
	n := binary.BigEndian.Uint32(padded)
	if int64(n) > int64(len(padded)-lenPrefixSize) {
		return nil, ErrDecrypt
	}
	plaintext := make([]byte, n)
	copy(plaintext, padded[lenPrefixSize:lenPrefixSize+int(n)])
	return plaintext, nil
}
