package tor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"voynich/identity"
)

// OnionService is a named, persisted onion service: its identity plus the
// port mapping it is published with.
type OnionService struct {
	Name          string `json:"name"`
	Hostname      string `json:"hostname"`
	ServicePort   uint16 `json:"service_port"`
	ListenAddress string `json:"listen_address"`
	SecretKey     []byte `json:"secret_key"`
}

// KeyPair reconstructs the long-term keypair from the stored expanded key.
func (s *OnionService) KeyPair() (*identity.KeyPair, error) {
	return identity.KeyPairFromExpanded(s.SecretKey)
}

// FromListing records a published service for persistence.
func FromListing(name string, listing *OnionListing, servicePort uint16, listenAddress string) *OnionService {
	return &OnionService{
		Name:          name,
		Hostname:      listing.ServiceID + ".onion",
		ServicePort:   servicePort,
		ListenAddress: listenAddress,
		SecretKey:     listing.KeyPair.Expanded(),
	}
}

// ErrServiceNotFound is returned when a named service is not in the store.
var ErrServiceNotFound = errors.New("tor: onion service not found")

// Store persists onion services as a JSON file, one entry per named
// service. The file lives under the user's data directory and holds secret
// keys, so it is written with owner-only permissions.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStorePath is $XDG_DATA_HOME/voynich/onion_services.
func DefaultStorePath() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("tor: find home directory: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "voynich", "onion_services"), nil
}

// Load reads all stored services. A missing file is an empty store.
func (s *Store) Load() ([]*OnionService, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("tor: read onion services: %w", err)
	}
	var services []*OnionService
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("tor: parse onion services: %w", err)
	}
	return services, nil
}

// Save writes the full service list.
func (s *Store) Save(services []*OnionService) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("tor: create data directory: %w", err)
	}
	data, err := json.MarshalIndent(services, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("tor: write onion services: %w", err)
	}
	return nil
}

// Find returns the named service.
func (s *Store) Find(name string) (*OnionService, error) {
	services, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, svc := range services {
		if svc.Name == name {
			return svc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
}

// Add inserts or replaces a named service.
func (s *Store) Add(svc *OnionService) error {
	services, err := s.Load()
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range services {
		if existing.Name == svc.Name {
			services[i] = svc
			replaced = true
			break
		}
	}
	if !replaced {
		services = append(services, svc)
	}
	return s.Save(services)
}
