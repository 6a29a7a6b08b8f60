// Package engine owns all live chat sessions for one local onion service:
// the accept loop on the service listener, outbound connects through the
// SOCKS dialer, and a fan-in event channel for the UI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"voynich"
	"voynich/identity"
	"voynich/internal/utils/log"
	"voynich/tor"
)

type EventKind int

const (
	EventNewConnection EventKind = iota
	EventMessage
	EventConnectionClosed
	EventError
)

// Event is one network happening, delivered to the UI over Events().
type Event struct {
	Kind    EventKind
	Peer    string
	Message *voynich.ChatMessage
	Err     error
}

// Engine multiplexes sessions. One goroutine per session reads inbound
// messages; sends go straight through the session, which serializes them.
type Engine struct {
	local  *identity.KeyPair
	dialer *tor.Dialer
	cfg    voynich.Config

	mu       sync.Mutex
	sessions map[string]*voynich.Session
	closed   bool

	events chan Event
}

func New(local *identity.KeyPair, dialer *tor.Dialer, cfg voynich.Config) *Engine {
	return &Engine{
		local:    local,
		dialer:   dialer,
		cfg:      cfg,
		sessions: make(map[string]*voynich.Session),
		events:   make(chan Event, 64),
	}
}

// LocalID returns the local onion id.
func (e *Engine) LocalID() string {
	return e.local.Identity().ID()
}

// Events is the fan-in channel of session events.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Serve accepts connections from the onion-service listener until the
// context is cancelled or the listener fails.
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("engine: accept: %w", err)
		}
		go e.handleInbound(ctx, conn)
	}
}

func (e *Engine) handleInbound(ctx context.Context, conn net.Conn) {
	session, err := voynich.Accept(ctx, tor.WrapAccepted(conn), e.local, e.cfg)
	if err != nil {
		log.Error("inbound handshake failed", zap.Error(err))
		return
	}
	e.register(session)
}

// Connect dials an onion service and establishes a session with it.
func (e *Engine) Connect(ctx context.Context, onionID string, port uint16) error {
	conn, err := e.dialer.Dial(ctx, onionID, port)
	if err != nil {
		return err
	}
	session, err := voynich.Connect(ctx, conn, e.local, e.cfg)
	if err != nil {
		return err
	}
	e.register(session)
	return nil
}

func (e *Engine) register(s *voynich.Session) {
	peer := s.PeerIdentity().ID()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		s.Close()
		return
	}
	if old, ok := e.sessions[peer]; ok {
		// A reconnect replaces the stale session with the same peer.
		old.Close()
	}
	e.sessions[peer] = s
	e.mu.Unlock()

	e.events <- Event{Kind: EventNewConnection, Peer: peer}
	go e.receiveLoop(s, peer)
}

func (e *Engine) receiveLoop(s *voynich.Session, peer string) {
	for {
		msg, err := s.Receive()
		if err != nil {
			if !voynich.IsGraceful(err) {
				e.events <- Event{Kind: EventError, Peer: peer, Err: err}
			}
			e.unregister(peer, s)
			e.events <- Event{Kind: EventConnectionClosed, Peer: peer}
			return
		}
		e.events <- Event{Kind: EventMessage, Peer: peer, Message: msg}
	}
}

func (e *Engine) unregister(peer string, s *voynich.Session) {
	e.mu.Lock()
	if current, ok := e.sessions[peer]; ok && current == s {
		delete(e.sessions, peer)
	}
	e.mu.Unlock()
	s.Close()
}

// Send delivers one message to a connected peer.
func (e *Engine) Send(peer, body string) error {
	e.mu.Lock()
	s, ok := e.sessions[peer]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("engine: no session with %s", peer)
	}
	return s.Send(&voynich.ChatMessage{Body: body})
}

// Disconnect closes the session with one peer.
func (e *Engine) Disconnect(peer string) error {
	e.mu.Lock()
	s, ok := e.sessions[peer]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("engine: no session with %s", peer)
	}
	return s.Close()
}

// Peers lists connected peer ids.
func (e *Engine) Peers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	peers := make([]string, 0, len(e.sessions))
	for peer := range e.sessions {
		peers = append(peers, peer)
	}
	return peers
}

// Close says goodbye on every session and stops accepting new ones.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	sessions := make([]*voynich.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessions = make(map[string]*voynich.Session)
	e.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil && !errors.Is(err, voynich.ErrClosed) {
			log.Debug("close session", zap.Error(err))
		}
	}
}
