package handshake

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voynich/identity"
	"voynich/internal/wire"
)

func newPeers(t *testing.T) (*identity.KeyPair, *identity.KeyPair) {
	t.Helper()
	alice, err := identity.NewKeyPair()
	require.NoError(t, err)
	bob, err := identity.NewKeyPair()
	require.NoError(t, err)
	return alice, bob
}

func startBoth(t *testing.T, alice, bob *identity.KeyPair) (*Machine, *Machine, *wire.KeyExchange, *wire.KeyExchange) {
	t.Helper()
	init, err := NewInitiator(alice, bob.Identity().ID())
	require.NoError(t, err)
	resp := NewResponder(bob)

	initKX, err := init.Start()
	require.NoError(t, err)
	respKX, err := resp.Start()
	require.NoError(t, err)
	return init, resp, initKX, respKX
}

func TestHandshakeHappyPath(t *testing.T) {
	alice, bob := newPeers(t)
	init, resp, initKX, respKX := startBoth(t, alice, bob)

	// Initiator has the full transcript after the key exchange and sends
	// its Identify immediately.
	initReplies, err := init.Handle(respKX)
	require.NoError(t, err)
	require.Len(t, initReplies, 1)
	initIdentify := initReplies[0].(*wire.Identify)
	assert.Equal(t, StateAwaitingPeerIdentify, init.State())

	// Responder cannot identify yet; it waits for the initiator.
	respReplies, err := resp.Handle(initKX)
	require.NoError(t, err)
	assert.Empty(t, respReplies)
	assert.Equal(t, StateAwaitingPeerIdentify, resp.State())

	respReplies, err = resp.Handle(initIdentify)
	require.NoError(t, err)
	require.Len(t, respReplies, 1)
	assert.Equal(t, StateReady, resp.State())

	_, err = init.Handle(respReplies[0])
	require.NoError(t, err)
	assert.Equal(t, StateReady, init.State())

	initRes, err := init.Result()
	require.NoError(t, err)
	respRes, err := resp.Result()
	require.NoError(t, err)

	// Both sides derived the same keying material and authenticated the
	// right peer.
	assert.Equal(t, initRes.Keys.InitiatorToResponder, respRes.Keys.InitiatorToResponder)
	assert.Equal(t, initRes.Keys.ResponderToInitiator, respRes.Keys.ResponderToInitiator)
	assert.True(t, initRes.Peer.Equal(bob.Identity()))
	assert.True(t, respRes.Peer.Equal(alice.Identity()))
}

func TestHandshakeOutOfOrderIdentify(t *testing.T) {
	alice, bob := newPeers(t)
	init, resp, initKX, respKX := startBoth(t, alice, bob)

	initReplies, err := init.Handle(respKX)
	require.NoError(t, err)
	initIdentify := initReplies[0].(*wire.Identify)

	// Identify lands before the key exchange: buffered, verified later.
	replies, err := resp.Handle(initIdentify)
	require.NoError(t, err)
	assert.Empty(t, replies)
	assert.Equal(t, StateAwaitingPeerKeyExchange, resp.State())

	replies, err = resp.Handle(initKX)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, StateReady, resp.State())
}

func TestHandshakeWrongResponder(t *testing.T) {
	alice, bob := newPeers(t)
	mallory, err := identity.NewKeyPair()
	require.NoError(t, err)

	// Alice dialed bob, but the transport delivered her to mallory, who
	// identifies honestly as itself.
	init, err := NewInitiator(alice, bob.Identity().ID())
	require.NoError(t, err)
	resp := NewResponder(mallory)

	initKX, err := init.Start()
	require.NoError(t, err)
	respKX, err := resp.Start()
	require.NoError(t, err)

	initReplies, err := init.Handle(respKX)
	require.NoError(t, err)
	_, err = resp.Handle(initKX)
	require.NoError(t, err)
	respReplies, err := resp.Handle(initReplies[0])
	require.NoError(t, err)

	_, err = init.Handle(respReplies[0])
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.Equal(t, StateFailed, init.State())
}

func TestHandshakeForgedSignature(t *testing.T) {
	alice, bob := newPeers(t)
	init, resp, initKX, respKX := startBoth(t, alice, bob)

	initReplies, err := init.Handle(respKX)
	require.NoError(t, err)
	_, err = resp.Handle(initKX)
	require.NoError(t, err)
	respReplies, err := resp.Handle(initReplies[0])
	require.NoError(t, err)

	forged := respReplies[0].(*wire.Identify)
	forged.Signature[0] ^= 0x01
	_, err = init.Handle(forged)
	assert.ErrorIs(t, err, ErrSignature)
	assert.Equal(t, StateFailed, init.State())
}

func TestHandshakeIDNotDerivableFromKey(t *testing.T) {
	alice, bob := newPeers(t)
	other, err := identity.NewKeyPair()
	require.NoError(t, err)
	init, _, _, respKX := startBoth(t, alice, bob)

	_, err = init.Handle(respKX)
	require.NoError(t, err)

	// Claimed id belongs to bob, presented key to someone else.
	_, err = init.Handle(&wire.Identify{
		OnionID:        bob.Identity().ID(),
		LongTermPublic: other.Public(),
		Signature:      make([]byte, 64),
	})
	assert.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestHandshakeDuplicateKeyExchange(t *testing.T) {
	alice, bob := newPeers(t)
	init, _, _, respKX := startBoth(t, alice, bob)

	_, err := init.Handle(respKX)
	require.NoError(t, err)
	_, err = init.Handle(respKX)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, StateFailed, init.State())
}

func TestHandshakeDuplicateIdentify(t *testing.T) {
	alice, bob := newPeers(t)
	init, resp, initKX, respKX := startBoth(t, alice, bob)

	initReplies, err := init.Handle(respKX)
	require.NoError(t, err)
	_, err = resp.Handle(initKX)
	require.NoError(t, err)
	_, err = resp.Handle(initReplies[0])
	require.NoError(t, err)

	_, err = resp.Handle(initReplies[0])
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, StateFailed, resp.State())
}

func TestHandshakeChatBeforeReady(t *testing.T) {
	alice, bob := newPeers(t)
	init, _, _, _ := startBoth(t, alice, bob)

	_, err := init.Handle(&wire.Chat{Body: "too early"})
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, StateFailed, init.State())

	_, resp, _, _ := startBoth(t, alice, bob)
	_, err = resp.Handle(&wire.Goodbye{})
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestHandshakePeerError(t *testing.T) {
	alice, bob := newPeers(t)
	init, _, _, _ := startBoth(t, alice, bob)

	_, err := init.Handle(&wire.Error{Code: wire.ErrCodeProtocol, Message: "handshake failed"})
	assert.ErrorIs(t, err, ErrPeerRejected)
}

// tcpPair returns two ends of a real loopback connection. Both handshake
// sides send their first frame before reading, which needs the buffering a
// real socket provides (net.Pipe would deadlock).
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server := <-accepted
	return client, server
}

func TestRunOverStream(t *testing.T) {
	alice, bob := newPeers(t)
	initConn, respConn := tcpPair(t)
	defer initConn.Close()
	defer respConn.Close()

	init, err := NewInitiator(alice, bob.Identity().ID())
	require.NoError(t, err)
	resp := NewResponder(bob)

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 2)
	go func() {
		res, err := Run(initConn, 0, init)
		done <- outcome{res, err}
	}()
	go func() {
		res, err := Run(respConn, 0, resp)
		done <- outcome{res, err}
	}()

	for i := 0; i < 2; i++ {
		select {
		case out := <-done:
			require.NoError(t, out.err)
			require.NotNil(t, out.res)
		case <-time.After(5 * time.Second):
			t.Fatal("handshake did not complete")
		}
	}
}
