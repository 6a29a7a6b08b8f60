// Package tor speaks to a local tor daemon: the control port for creating
// onion services, the SOCKS port for reaching peers, and the on-disk formats
// tor uses for hidden-service keys.
package tor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"strings"

	"go.uber.org/zap"

	"voynich/identity"
	"voynich/internal/utils/log"
)

// Authentication methods for the control port.
type AuthMethod int

const (
	AuthNull AuthMethod = iota
	AuthHashedPassword
	AuthSafeCookie
)

const (
	serverHashKey = "Tor safe cookie authentication server-to-controller hash"
	clientHashKey = "Tor safe cookie authentication controller-to-server hash"
)

var ErrAuthFailed = errors.New("tor: control authentication failed")

type (
	// Controller is a connection to the tor control port.
	Controller struct {
		conn *textproto.Conn
	}

	// Auth configures control-port authentication.
	Auth struct {
		Method   AuthMethod
		Password string
		// CookiePath overrides the cookie file announced by PROTOCOLINFO.
		CookiePath string
	}

	// OnionListing is the result of creating an onion service.
	OnionListing struct {
		ServiceID string
		KeyPair   *identity.KeyPair
	}
)

// NewController dials the control port.
func NewController(address string) (*Controller, error) {
	conn, err := textproto.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tor: connect control port %s: %w", address, err)
	}
	return &Controller{conn: conn}, nil
}

func (c *Controller) cmd(format string, args ...any) ([]string, error) {
	id, err := c.conn.Cmd(format, args...)
	if err != nil {
		return nil, fmt.Errorf("tor: send command: %w", err)
	}
	c.conn.StartResponse(id)
	defer c.conn.EndResponse(id)
	code, msg, err := c.conn.ReadResponse(250)
	if err != nil {
		return nil, fmt.Errorf("tor: control reply %d: %w", code, err)
	}
	return strings.Split(msg, "\n"), nil
}

// Authenticate performs the configured authentication exchange.
func (c *Controller) Authenticate(auth Auth) error {
	switch auth.Method {
	case AuthNull:
		_, err := c.cmd("AUTHENTICATE")
		return err
	case AuthHashedPassword:
		_, err := c.cmd("AUTHENTICATE %s", quoted(auth.Password))
		return err
	case AuthSafeCookie:
		return c.safeCookie(auth.CookiePath)
	default:
		return fmt.Errorf("tor: unknown auth method %d", auth.Method)
	}
}

// safeCookie runs the AUTHCHALLENGE exchange so the cookie never crosses the
// control connection in the clear.
func (c *Controller) safeCookie(cookiePath string) error {
	if cookiePath == "" {
		info, err := c.ProtocolInfo()
		if err != nil {
			return err
		}
		cookiePath = info.CookieFile
	}
	cookie, err := os.ReadFile(cookiePath)
	if err != nil {
		return fmt.Errorf("tor: read cookie file: %w", err)
	}

	clientNonce := make([]byte, 32)
	if _, err := rand.Read(clientNonce); err != nil {
		return err
	}
	lines, err := c.cmd("AUTHCHALLENGE SAFECOOKIE %s", hex.EncodeToString(clientNonce))
	if err != nil {
		return err
	}
	fields := parseKeyValues(lines)
	serverHash, err := hex.DecodeString(fields["SERVERHASH"])
	if err != nil {
		return fmt.Errorf("%w: bad server hash", ErrAuthFailed)
	}
	serverNonce, err := hex.DecodeString(fields["SERVERNONCE"])
	if err != nil {
		return fmt.Errorf("%w: bad server nonce", ErrAuthFailed)
	}

	material := append(append(append([]byte{}, cookie...), clientNonce...), serverNonce...)
	if !hmac.Equal(hmacSHA256([]byte(serverHashKey), material), serverHash) {
		return fmt.Errorf("%w: server hash mismatch", ErrAuthFailed)
	}
	clientHash := hmacSHA256([]byte(clientHashKey), material)
	if _, err := c.cmd("AUTHENTICATE %s", hex.EncodeToString(clientHash)); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return nil
}

// ProtocolInfoReply carries the subset of PROTOCOLINFO we use.
type ProtocolInfoReply struct {
	AuthMethods []string
	CookieFile  string
}

func (c *Controller) ProtocolInfo() (*ProtocolInfoReply, error) {
	lines, err := c.cmd("PROTOCOLINFO 1")
	if err != nil {
		return nil, err
	}
	return parseProtocolInfo(lines), nil
}

// AddOnion publishes an onion service forwarding virtPort to target. A nil
// keypair asks tor for a fresh ED25519-V3 key, which is returned; transient
// services vanish when the control connection closes unless detach is set.
func (c *Controller) AddOnion(kp *identity.KeyPair, virtPort uint16, target string, detach bool) (*OnionListing, error) {
	keySpec := "NEW:ED25519-V3"
	if kp != nil {
		keySpec = "ED25519-V3:" + base64.StdEncoding.EncodeToString(kp.Expanded())
	}
	flags := ""
	if detach {
		flags = " Flags=Detach"
	}
	lines, err := c.cmd("ADD_ONION %s%s Port=%d,%s", keySpec, flags, virtPort, target)
	if err != nil {
		return nil, err
	}
	fields := parseKeyValues(lines)
	listing := &OnionListing{ServiceID: fields["ServiceID"]}
	if listing.ServiceID == "" {
		return nil, errors.New("tor: ADD_ONION reply carries no ServiceID")
	}

	if kp != nil {
		listing.KeyPair = kp
	} else {
		raw, ok := strings.CutPrefix(fields["PrivateKey"], "ED25519-V3:")
		if !ok {
			return nil, errors.New("tor: ADD_ONION reply carries no usable private key")
		}
		expanded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("tor: decode private key: %w", err)
		}
		listing.KeyPair, err = identity.KeyPairFromExpanded(expanded)
		if err != nil {
			return nil, err
		}
	}

	// Sanity check: the id tor assigned must match the key we hold.
	if listing.KeyPair.Identity().ID() != listing.ServiceID {
		return nil, fmt.Errorf("tor: service id %s does not match keypair", listing.ServiceID)
	}
	log.Info("onion service published", zap.String("service_id", listing.ServiceID))
	return listing, nil
}

// DelOnion removes a service previously created on this connection.
func (c *Controller) DelOnion(serviceID string) error {
	_, err := c.cmd("DEL_ONION %s", serviceID)
	return err
}

func (c *Controller) Close() error {
	_, _ = c.cmd("QUIT")
	return c.conn.Close()
}

// Listen is a convenience: bind a local listener, publish an onion service
// pointing at it, and return both.
func Listen(ctrl *Controller, kp *identity.KeyPair, virtPort uint16, listenAddr string) (*OnionListing, net.Listener, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("tor: listen %s: %w", listenAddr, err)
	}
	listing, err := ctrl.AddOnion(kp, virtPort, ln.Addr().String(), false)
	if err != nil {
		ln.Close()
		return nil, nil, err
	}
	return listing, ln, nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
