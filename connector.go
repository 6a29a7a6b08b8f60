package voynich

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"voynich/identity"
	"voynich/internal/handshake"
	"voynich/internal/utils/log"
)

// Connect runs the handshake as initiator over an already-dialed transport
// and returns the established session. The transport's RemoteID is the
// dialed onion id; the responder must prove ownership of it.
func Connect(ctx context.Context, t Transport, local *identity.KeyPair, cfg Config) (*Session, error) {
	remoteID := t.RemoteID()
	if remoteID == "" {
		t.Close()
		return nil, fmt.Errorf("%w: transport carries no remote onion id", ErrHandshakeFailed)
	}
	m, err := handshake.NewInitiator(local, remoteID)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return establish(ctx, t, local, m, cfg)
}

// Accept runs the handshake as responder over an accepted transport and
// returns the established session. The peer's identity is learned and
// authenticated during the handshake.
func Accept(ctx context.Context, t Transport, local *identity.KeyPair, cfg Config) (*Session, error) {
	return establish(ctx, t, local, handshake.NewResponder(local), cfg)
}

// establish drives the handshake under the configured deadline. Closing the
// transport is the only way to abort a blocked read, so the timer and the
// context watcher both do exactly that.
func establish(ctx context.Context, t Transport, local *identity.KeyPair, m *handshake.Machine, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	var timedOut atomic.Bool
	timer := time.AfterFunc(cfg.HandshakeDeadline, func() {
		timedOut.Store(true)
		t.Close()
	})
	watcherDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-watcherDone:
		}
	}()

	res, err := handshake.Run(t, cfg.MaxFrameSize, m)
	timer.Stop()
	close(watcherDone)

	if err != nil {
		t.Close()
		switch {
		case timedOut.Load():
			err = ErrHandshakeTimeout
		case ctx.Err() != nil:
			err = ctx.Err()
		default:
			err = fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
		log.Debug("handshake failed", zap.Error(err))
		return nil, err
	}

	s, err := newSession(t, local, m.Role(), res, cfg)
	if err != nil {
		t.Close()
		return nil, err
	}
	log.Debug("session established",
		zap.String("local", s.LocalIdentity().ID()),
		zap.String("peer", s.PeerIdentity().ID()))
	return s, nil
}

// IsGraceful reports whether err is one of the clean shutdown conditions
// rather than a failure.
func IsGraceful(err error) bool {
	return errors.Is(err, ErrPeerClosed) || errors.Is(err, ErrClosed)
}
