// Package handshake implements session establishment: an ephemeral X25519
// exchange followed by mutual identification, with the derived keys bound to
// both onion identities through a signed transcript.
package handshake

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"voynich/identity"
	"voynich/internal/cryptographic/dh"
	"voynich/internal/cryptographic/kdf"
	"voynich/internal/cryptographic/signature"
	"voynich/internal/wire"
)

type State int

const (
	StateInit State = iota
	StateAwaitingPeerKeyExchange
	StateAwaitingPeerIdentify
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingPeerKeyExchange:
		return "awaiting-peer-key-exchange"
	case StateAwaitingPeerIdentify:
		return "awaiting-peer-identify"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Role int

const (
	Initiator Role = iota
	Responder
)

var (
	// ErrProtocolViolation covers forbidden frames: duplicates, chat before
	// ready, or anything else outside the schedule.
	ErrProtocolViolation = errors.New("handshake: protocol violation")

	// ErrIdentityMismatch is returned when the presented onion id does not
	// derive from the presented key, or does not match the dialed id.
	ErrIdentityMismatch = errors.New("handshake: identity mismatch")

	// ErrSignature is returned when the transcript signature does not verify.
	ErrSignature = errors.New("handshake: signature verification failed")

	// ErrPeerRejected is returned when the peer sends an Error frame.
	ErrPeerRejected = errors.New("handshake: rejected by peer")
)

// Result is what a completed handshake hands to the session.
type Result struct {
	Keys *kdf.SessionKeys
	Peer identity.Identity
}

// Machine drives one handshake. It is message-driven: Start emits the local
// KeyExchange, Handle consumes one peer frame and returns any frames to
// send. The machine never touches the transport.
type Machine struct {
	role         Role
	local        *identity.KeyPair
	expectedPeer identity.Identity // initiator only: parsed from the dialed id

	state         State
	eph           *dh.EphemeralKeyPair
	peerEphemeral []byte
	sharedSecret  []byte
	keys          *kdf.SessionKeys
	transcriptSum [sha256.Size]byte
	hashed        bool
	peer          identity.Identity

	// Identify received before the key exchange completed; verified once
	// both ephemerals are in.
	pending *wire.Identify

	peerIdentified bool
}

// NewInitiator creates the machine for the dialing side. remoteID is the
// onion id that was dialed; the responder must prove ownership of it.
func NewInitiator(local *identity.KeyPair, remoteID string) (*Machine, error) {
	expected, err := identity.Parse(remoteID)
	if err != nil {
		return nil, fmt.Errorf("handshake: remote id: %w", err)
	}
	return &Machine{role: Initiator, local: local, expectedPeer: expected}, nil
}

// NewResponder creates the machine for the accepting side. The peer's
// identity is learned from its Identify frame.
func NewResponder(local *identity.KeyPair) *Machine {
	return &Machine{role: Responder, local: local}
}

func (m *Machine) State() State { return m.state }
func (m *Machine) Role() Role   { return m.role }

// Start generates the ephemeral keypair and returns the KeyExchange frame to
// send. Must be called exactly once, before Handle.
func (m *Machine) Start() (*wire.KeyExchange, error) {
	if m.state != StateInit {
		return nil, m.fail(ErrProtocolViolation)
	}
	eph, err := dh.NewEphemeralKeyPair()
	if err != nil {
		return nil, m.fail(err)
	}
	m.eph = eph
	m.state = StateAwaitingPeerKeyExchange
	return &wire.KeyExchange{EphemeralPublic: eph.Public()}, nil
}

// Handle consumes one peer frame and returns the frames to send in response.
// Any returned error is fatal and leaves the machine in StateFailed.
func (m *Machine) Handle(msg any) ([]any, error) {
	if m.state == StateInit || m.state == StateFailed || m.state == StateReady {
		return nil, m.fail(ErrProtocolViolation)
	}
	switch msg := msg.(type) {
	case *wire.KeyExchange:
		return m.handleKeyExchange(msg)
	case *wire.Identify:
		return m.handleIdentify(msg)
	case *wire.Error:
		return nil, m.fail(fmt.Errorf("%w: code %d", ErrPeerRejected, msg.Code))
	default:
		return nil, m.fail(fmt.Errorf("%w: %T before ready", ErrProtocolViolation, msg))
	}
}

func (m *Machine) handleKeyExchange(msg *wire.KeyExchange) ([]any, error) {
	if m.peerEphemeral != nil {
		return nil, m.fail(fmt.Errorf("%w: duplicate key exchange", ErrProtocolViolation))
	}
	m.peerEphemeral = msg.EphemeralPublic

	secret, err := m.eph.SharedSecret(m.peerEphemeral)
	if err != nil {
		return nil, m.fail(err)
	}
	m.eph.Zero()
	m.sharedSecret = secret

	keys, err := kdf.DeriveSessionKeys(secret)
	if err != nil {
		return nil, m.fail(err)
	}
	m.keys = keys
	m.state = StateAwaitingPeerIdentify

	var replies []any

	// The initiator has the full transcript already: the responder's key is
	// embedded in the dialed onion id. The responder has to wait for the
	// initiator's Identify before it can hash anything.
	if m.role == Initiator {
		m.computeTranscript(m.local.Identity(), m.expectedPeer)
		ident, err := m.buildIdentify()
		if err != nil {
			return nil, m.fail(err)
		}
		replies = append(replies, ident)
	}

	if m.pending != nil {
		pending := m.pending
		m.pending = nil
		more, err := m.handleIdentify(pending)
		if err != nil {
			return nil, err
		}
		replies = append(replies, more...)
	}
	return replies, nil
}

func (m *Machine) handleIdentify(msg *wire.Identify) ([]any, error) {
	if m.peerIdentified || m.pending != nil {
		return nil, m.fail(fmt.Errorf("%w: duplicate identify", ErrProtocolViolation))
	}
	if m.peerEphemeral == nil {
		// Tolerated out-of-order receipt; verification needs both ephemerals.
		m.pending = msg
		return nil, nil
	}

	peerPub := ed25519.PublicKey(msg.LongTermPublic)
	if !identity.Matches(msg.OnionID, peerPub) {
		return nil, m.fail(fmt.Errorf("%w: onion id does not derive from presented key", ErrIdentityMismatch))
	}

	switch m.role {
	case Initiator:
		if msg.OnionID != m.expectedPeer.ID() {
			return nil, m.fail(fmt.Errorf("%w: dialed %s, peer presented %s", ErrIdentityMismatch, m.expectedPeer.ID(), msg.OnionID))
		}
		if !signature.Verify(peerPub, m.toSign(msg.OnionID), msg.Signature) {
			return nil, m.fail(ErrSignature)
		}
		m.peer = m.expectedPeer
		m.peerIdentified = true
		m.finish()
		return nil, nil

	default: // Responder
		peerIdentity, err := identity.FromPublicKey(peerPub)
		if err != nil {
			return nil, m.fail(err)
		}
		m.computeTranscript(peerIdentity, m.local.Identity())
		if !signature.Verify(peerPub, m.toSign(msg.OnionID), msg.Signature) {
			return nil, m.fail(ErrSignature)
		}
		m.peer = peerIdentity
		m.peerIdentified = true

		ident, err := m.buildIdentify()
		if err != nil {
			return nil, m.fail(err)
		}
		m.finish()
		return []any{ident}, nil
	}
}

// computeTranscript hashes the canonical transcript: initiator id, responder
// id, initiator key, responder key, shared secret. The shared secret is
// consumed here and wiped.
func (m *Machine) computeTranscript(init, resp identity.Identity) {
	h := sha256.New()
	h.Write([]byte(init.ID()))
	h.Write([]byte(resp.ID()))
	h.Write(init.PublicKey())
	h.Write(resp.PublicKey())
	h.Write(m.sharedSecret)
	h.Sum(m.transcriptSum[:0])
	m.hashed = true

	dh.ZeroBytes(m.sharedSecret)
	m.sharedSecret = nil
}

func (m *Machine) toSign(onionID string) []byte {
	buf := make([]byte, 0, sha256.Size+len(onionID))
	buf = append(buf, m.transcriptSum[:]...)
	buf = append(buf, []byte(onionID)...)
	return buf
}

func (m *Machine) buildIdentify() (*wire.Identify, error) {
	id := m.local.Identity()
	sig, err := m.local.Sign(m.toSign(id.ID()))
	if err != nil {
		return nil, err
	}
	return &wire.Identify{
		OnionID:        id.ID(),
		LongTermPublic: id.PublicKey(),
		Signature:      sig,
	}, nil
}

func (m *Machine) finish() {
	m.state = StateReady
	for i := range m.transcriptSum {
		m.transcriptSum[i] = 0
	}
}

// Result returns the derived keys and authenticated peer identity. Valid
// only in StateReady, and only once: the machine gives up its key material.
func (m *Machine) Result() (*Result, error) {
	if m.state != StateReady || m.keys == nil {
		return nil, fmt.Errorf("handshake: no result in state %s", m.state)
	}
	keys := m.keys
	m.keys = nil
	return &Result{Keys: keys, Peer: m.peer}, nil
}

// fail transitions to StateFailed and destroys all secrets.
func (m *Machine) fail(err error) error {
	m.state = StateFailed
	if m.eph != nil {
		m.eph.Zero()
	}
	if m.sharedSecret != nil {
		dh.ZeroBytes(m.sharedSecret)
		m.sharedSecret = nil
	}
	if m.keys != nil {
		m.keys.Zero()
		m.keys = nil
	}
	for i := range m.transcriptSum {
		m.transcriptSum[i] = 0
	}
	return err
}
