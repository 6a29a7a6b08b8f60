package tor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voynich/identity"
)

// secretKeyHeader prefixes tor's hs_ed25519_secret_key file; the expanded
// key follows at offset 32.
var secretKeyHeader = []byte("== ed25519v1-secret: type0 ==")

const secretKeyFileSize = 96

// ParseServiceDir reads a standard tor hidden-service directory (the kind
// referenced by HiddenServiceDir in torrc) and returns it as a storable
// service. The hostname file and the secret key must agree.
func ParseServiceDir(name, dir string) (*OnionService, error) {
	hostnameBytes, err := os.ReadFile(filepath.Join(dir, "hostname"))
	if err != nil {
		return nil, fmt.Errorf("tor: read hostname: %w", err)
	}
	hostname := strings.TrimSpace(string(hostnameBytes))

	keyData, err := os.ReadFile(filepath.Join(dir, "hs_ed25519_secret_key"))
	if err != nil {
		return nil, fmt.Errorf("tor: read secret key: %w", err)
	}
	if len(keyData) != secretKeyFileSize || !bytes.HasPrefix(keyData, secretKeyHeader) {
		return nil, fmt.Errorf("tor: %s: not an ed25519v1 secret key file", dir)
	}
	expanded := keyData[32:]

	kp, err := identity.KeyPairFromExpanded(expanded)
	if err != nil {
		return nil, err
	}
	if kp.Identity().Hostname() != hostname {
		return nil, fmt.Errorf("tor: hostname %s does not match secret key", hostname)
	}

	return &OnionService{
		Name:      name,
		Hostname:  hostname,
		SecretKey: kp.Expanded(),
	}, nil
}
