package voynich

import (
	"errors"
	"io"
	"time"

	"voynich/internal/wire"
)

// Transport is the byte-stream contract the session protocol runs over:
// a reliable bidirectional stream plus the onion id that was dialed.
// Transport-level metadata is only a sanity check; authentication comes from
// the handshake, not the substrate.
type Transport interface {
	io.ReadWriteCloser

	// RemoteID returns the onion id this transport was dialed to, without
	// the ".onion" suffix. Empty on accepted connections, where the peer's
	// identity is learned from the handshake.
	RemoteID() string
}

// Config carries the protocol knobs. The zero value uses the defaults.
type Config struct {
	// MaxFrameSize is the hard cap on any incoming frame.
	MaxFrameSize uint32

	// HandshakeDeadline bounds the whole handshake; expiry is fatal.
	HandshakeDeadline time.Duration

	// PaddingBlockSize is the plaintext padding granularity.
	PaddingBlockSize int

	// IdleDeadline closes a session that sees no traffic in either
	// direction for this long. Zero disables it.
	IdleDeadline time.Duration
}

const (
	DefaultHandshakeDeadline = 30 * time.Second
	DefaultMaxFrameSize      = wire.DefaultMaxFrameSize
)

func (c Config) withDefaults() Config {
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.HandshakeDeadline == 0 {
		c.HandshakeDeadline = DefaultHandshakeDeadline
	}
	return c
}

// ChatMessage is one application message. Sender and recipient exist for
// application-level multiplexing; on receive they are overwritten with the
// session-authenticated identities and are never trusted from the wire.
type ChatMessage struct {
	Sender    string
	Recipient string
	Timestamp time.Time
	Body      string
}

var (
	// ErrClosed is returned after the session has been closed locally.
	ErrClosed = errors.New("voynich: session closed")

	// ErrPeerClosed is returned by Receive once the peer has said goodbye
	// and all delivered messages have been drained. It is not a failure.
	ErrPeerClosed = errors.New("voynich: peer closed the session")

	// ErrHandshakeFailed wraps every fatal handshake error.
	ErrHandshakeFailed = errors.New("voynich: handshake failed")

	// ErrHandshakeTimeout is returned when the handshake deadline expires.
	ErrHandshakeTimeout = errors.New("voynich: handshake deadline exceeded")

	// ErrIdleTimeout is returned when the idle deadline expires.
	ErrIdleTimeout = errors.New("voynich: session idle deadline exceeded")

	// ErrSessionFailed wraps every fatal post-handshake error: transport
	// I/O, framing, decryption, deserialization, protocol violations.
	ErrSessionFailed = errors.New("voynich: session failed")
)
