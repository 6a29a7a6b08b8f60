// Package config loads the voynich configuration file and applies defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		Logging  Logging  `mapstructure:"logging"`
		Tor      Tor      `mapstructure:"tor"`
		Protocol Protocol `mapstructure:"protocol"`
	}

	Logging struct {
		Debug bool `mapstructure:"debug"`
	}

	Tor struct {
		ProxyAddress   string `mapstructure:"proxy_address"`
		ControlAddress string `mapstructure:"control_address"`
		// Authentication is one of "", "hashed-password", "safe-cookie".
		Authentication string `mapstructure:"authentication"`
		HashedPassword string `mapstructure:"hashed_password"`
		Cookie         string `mapstructure:"cookie"`
	}

	Protocol struct {
		MaxFrameSize      uint32        `mapstructure:"max_frame_size"`
		HandshakeDeadline time.Duration `mapstructure:"handshake_deadline"`
		IdleDeadline      time.Duration `mapstructure:"idle_deadline"`
		PaddingBlockSize  int           `mapstructure:"padding_block_size"`
	}
)

// DefaultPath is $XDG_CONFIG_HOME/voynich/config.toml.
func DefaultPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: find home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "voynich", "config.toml"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.debug", false)
	v.SetDefault("tor.proxy_address", "127.0.0.1:9050")
	v.SetDefault("tor.control_address", "127.0.0.1:9051")
	v.SetDefault("protocol.handshake_deadline", 30*time.Second)
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
