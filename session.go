package voynich

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"voynich/identity"
	"voynich/internal/cryptographic/encryption"
	"voynich/internal/handshake"
	"voynich/internal/utils/log"
	"voynich/internal/wire"
)

// Session is an established, authenticated, encrypted channel to one peer.
// The peer identity is fixed at handshake completion and never reassigned.
// Send and Receive are safe for concurrent use with each other; Send is
// additionally safe from multiple goroutines.
type Session struct {
	transport Transport
	local     identity.Identity
	peer      identity.Identity

	sendMu sync.Mutex
	sendCh *encryption.Channel
	fw     *wire.Writer

	recvCh  *encryption.Channel
	fr      *wire.Reader
	inbound chan *ChatMessage

	mu     sync.Mutex
	err    error
	closed bool

	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once

	idle      time.Duration
	idleTimer *time.Timer
}

func newSession(t Transport, local *identity.KeyPair, role handshake.Role, res *handshake.Result, cfg Config) (*Session, error) {
	keys := res.Keys
	var sendKey, recvKey []byte
	if role == handshake.Initiator {
		sendKey = keys.InitiatorToResponder[:]
		recvKey = keys.ResponderToInitiator[:]
	} else {
		sendKey = keys.ResponderToInitiator[:]
		recvKey = keys.InitiatorToResponder[:]
	}

	sendCh, err := encryption.NewChannel(sendKey, cfg.PaddingBlockSize)
	if err != nil {
		keys.Zero()
		return nil, err
	}
	recvCh, err := encryption.NewChannel(recvKey, cfg.PaddingBlockSize)
	if err != nil {
		keys.Zero()
		return nil, err
	}
	keys.Zero()

	s := &Session{
		transport: t,
		local:     local.Identity(),
		peer:      res.Peer,
		sendCh:    sendCh,
		recvCh:    recvCh,
		fw:        wire.NewWriter(t, cfg.MaxFrameSize),
		fr:        wire.NewReader(t, cfg.MaxFrameSize),
		inbound:   make(chan *ChatMessage, 16),
		done:      make(chan struct{}),
		idle:      cfg.IdleDeadline,
	}
	if s.idle > 0 {
		s.idleTimer = time.AfterFunc(s.idle, func() {
			s.fatal(ErrIdleTimeout)
		})
	}
	go s.readLoop()
	return s, nil
}

// LocalIdentity returns the local onion identity.
func (s *Session) LocalIdentity() identity.Identity {
	return s.local
}

// PeerIdentity returns the authenticated peer identity.
func (s *Session) PeerIdentity() identity.Identity {
	return s.peer
}

func (s *Session) touch() {
	if s.idleTimer != nil {
		s.idleTimer.Reset(s.idle)
	}
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}
		s.transport.Close()
	})
}

// Send pads, encrypts, frames and writes one chat message. Sender,
// recipient and timestamp are filled in from the session when empty.
func (s *Session) Send(msg *ChatMessage) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	sender := msg.Sender
	if sender == "" {
		sender = s.local.ID()
	}
	recipient := msg.Recipient
	if recipient == "" {
		recipient = s.peer.ID()
	}
	payload, err := wire.Marshal(&wire.Chat{
		Sender:    sender,
		Recipient: recipient,
		Timestamp: ts.Unix(),
		Body:      msg.Body,
	})
	if err != nil {
		return err
	}
	return s.sendFrame(payload)
}

func (s *Session) sendFrame(plaintext []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.err != nil && s.err != ErrPeerClosed {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	ciphertext, err := s.sendCh.Seal(plaintext)
	if err != nil {
		// Nonce exhaustion: terminate before any nonce could be reused.
		// Seal emits nothing in this case.
		return s.fatal(err)
	}
	if err := s.fw.WriteFrame(ciphertext); err != nil {
		return s.fatal(err)
	}
	s.touch()
	return nil
}

// Receive returns the next message from the peer. The sender and recipient
// fields are the session-authenticated identities, not the wire contents.
// After the peer says goodbye it returns ErrPeerClosed once the delivered
// messages are drained; after a local Close it returns ErrClosed.
func (s *Session) Receive() (*ChatMessage, error) {
	msg, ok := <-s.inbound
	if ok {
		return msg, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return nil, ErrClosed
	case s.err == nil || s.err == ErrPeerClosed:
		return nil, ErrPeerClosed
	default:
		return nil, s.err
	}
}

func (s *Session) readLoop() {
	defer close(s.inbound)
	for {
		payload, err := s.fr.ReadFrame()
		if err != nil {
			s.fatal(fmt.Errorf("read frame: %w", err))
			return
		}
		plaintext, err := s.recvCh.Open(payload)
		if err != nil {
			s.fatal(err)
			return
		}
		msg, err := wire.Unmarshal(plaintext)
		if err != nil {
			s.fatal(err)
			return
		}
		s.touch()

		switch msg := msg.(type) {
		case *wire.Chat:
			// The authenticated peer identity is authoritative; the wire
			// sender and recipient are ignored.
			out := &ChatMessage{
				Sender:    s.peer.ID(),
				Recipient: s.local.ID(),
				Timestamp: time.Unix(msg.Timestamp, 0),
				Body:      msg.Body,
			}
			select {
			case s.inbound <- out:
			case <-s.done:
				return
			}
		case *wire.Goodbye:
			s.halfClose()
			return
		case *wire.Error:
			s.fatal(fmt.Errorf("peer error: code %d", msg.Code))
			return
		default:
			s.fatal(fmt.Errorf("unexpected %T frame on established session", msg))
			return
		}
	}
}

// halfClose records a graceful goodbye from the peer. Outbound sends keep
// working until Close; further reads report the peer as gone.
func (s *Session) halfClose() {
	s.mu.Lock()
	if s.err == nil {
		s.err = ErrPeerClosed
	}
	s.mu.Unlock()
	log.Debug("peer said goodbye", zap.String("peer", s.peer.ID()))
}

// fatal records the first fatal error, drops the connection and stops the
// session. No partial plaintext is ever delivered upstream.
func (s *Session) fatal(err error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.stop()
		return ErrClosed
	}
	if s.err == nil {
		s.err = fmt.Errorf("%w: %w", ErrSessionFailed, err)
	}
	out := s.err
	s.mu.Unlock()
	s.stop()
	return out
}

// Err returns the fatal session error, if any. A graceful goodbye from the
// peer is not an error.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == ErrPeerClosed {
		return nil
	}
	return s.err
}

// Close emits an encrypted goodbye, closes the transport and stops the
// session. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if payload, err := wire.Marshal(&wire.Goodbye{}); err == nil {
			_ = s.sendFrame(payload)
		}
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.stop()
	})
	return nil
}
