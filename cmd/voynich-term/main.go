package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"voynich"
	"voynich/identity"
	"voynich/internal/config"
	"voynich/internal/engine"
	"voynich/internal/ui"
	"voynich/internal/utils/log"
	"voynich/tor"
)

var (
	flagConfig        string
	flagName          string
	flagServicePort   uint16
	flagListenAddress string
	flagDebug         bool
)

func main() {
	root := &cobra.Command{
		Use:   "voynich-term",
		Short: "Anonymous, end-to-end encrypted chat over onion services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run()
		},
	}
	root.Flags().StringVarP(&flagConfig, "config", "c", "", "config file (default $XDG_CONFIG_HOME/voynich/config.toml)")
	root.Flags().StringVarP(&flagName, "name", "n", "", "named onion service from the store (default: transient service)")
	root.Flags().Uint16VarP(&flagServicePort, "service-port", "p", 3000, "onion service port peers dial")
	root.Flags().StringVarP(&flagListenAddress, "listen-address", "l", "127.0.0.1:0", "local address the service forwards to")
	root.Flags().BoolVarP(&flagDebug, "debug", "d", false, "log debug messages")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	ctrl, err := tor.NewController(cfg.Tor.ControlAddress)
	if err != nil {
		return err
	}
	defer ctrl.Close()
	if err := ctrl.Authenticate(controlAuth(cfg)); err != nil {
		return err
	}

	var kp *identity.KeyPair
	store, err := serviceStore()
	if err != nil {
		return err
	}
	if flagName != "" {
		svc, err := store.Find(flagName)
		if err == nil {
			if kp, err = svc.KeyPair(); err != nil {
				return err
			}
		} else if !errors.Is(err, tor.ErrServiceNotFound) {
			return err
		}
	}

	listing, ln, err := tor.Listen(ctrl, kp, flagServicePort, flagListenAddress)
	if err != nil {
		return err
	}
	defer ln.Close()
	defer ctrl.DelOnion(listing.ServiceID)

	if flagName != "" && kp == nil {
		svc := tor.FromListing(flagName, listing, flagServicePort, flagListenAddress)
		if err := store.Add(svc); err != nil {
			return err
		}
	}

	eng := engine.New(listing.KeyPair, tor.NewDialer(cfg.Tor.ProxyAddress), voynich.Config{
		MaxFrameSize:      cfg.Protocol.MaxFrameSize,
		HandshakeDeadline: cfg.Protocol.HandshakeDeadline,
		IdleDeadline:      cfg.Protocol.IdleDeadline,
		PaddingBlockSize:  cfg.Protocol.PaddingBlockSize,
	})

	u := ui.New(eng)
	log.SetLogger(u.Logger(flagDebug || cfg.Logging.Debug))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := eng.Serve(ctx, ln); err != nil && ctx.Err() == nil {
			log.Error("listener stopped", zap.Error(err))
		}
	}()

	err = u.Run(ctx)
	eng.Close()
	return err
}

func controlAuth(cfg *config.Config) tor.Auth {
	switch cfg.Tor.Authentication {
	case "hashed-password":
		password := cfg.Tor.HashedPassword
		if password == "" {
			fmt.Print("Tor control password: ")
			raw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err == nil {
				password = string(raw)
			}
		}
		return tor.Auth{Method: tor.AuthHashedPassword, Password: password}
	case "safe-cookie":
		return tor.Auth{Method: tor.AuthSafeCookie, CookiePath: cfg.Tor.Cookie}
	default:
		return tor.Auth{Method: tor.AuthNull}
	}
}

func serviceStore() (*tor.Store, error) {
	path, err := tor.DefaultStorePath()
	if err != nil {
		return nil, err
	}
	return tor.NewStore(path), nil
}

