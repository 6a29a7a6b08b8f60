package tor

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"

	"voynich/identity"
)

// Conn is a stream to or from a peer. It satisfies the session transport
// contract: dialed connections carry the onion id they were dialed to,
// accepted connections carry none.
type Conn struct {
	net.Conn
	remoteID string
}

// RemoteID returns the dialed onion id, or "" for accepted connections.
func (c *Conn) RemoteID() string {
	return c.remoteID
}

// WrapAccepted adapts a connection from the local onion-service listener.
func WrapAccepted(conn net.Conn) *Conn {
	return &Conn{Conn: conn}
}

// Dialer reaches onion services through the tor SOCKS proxy.
type Dialer struct {
	proxyAddress string
}

func NewDialer(proxyAddress string) *Dialer {
	return &Dialer{proxyAddress: proxyAddress}
}

// Dial connects to an onion service. The id is validated locally before
// anything touches the network, and travels with the connection so the
// handshake can hold the responder to it.
func (d *Dialer) Dial(ctx context.Context, onionID string, port uint16) (*Conn, error) {
	id, err := identity.Parse(onionID)
	if err != nil {
		return nil, err
	}
	socks, err := proxy.SOCKS5("tcp", d.proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("tor: socks proxy %s: %w", d.proxyAddress, err)
	}
	cd, ok := socks.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("tor: socks dialer does not support contexts")
	}
	conn, err := cd.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", id.Hostname(), port))
	if err != nil {
		return nil, fmt.Errorf("tor: dial %s: %w", id.Hostname(), err)
	}
	return &Conn{Conn: conn, remoteID: id.ID()}, nil
}
