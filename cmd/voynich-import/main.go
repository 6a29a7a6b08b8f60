package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"voynich/tor"
)

// voynich-import copies an existing tor hidden-service directory into the
// voynich onion-service store so voynich-term can publish it by name.
func main() {
	root := &cobra.Command{
		Use:   "voynich-import <name> <hidden-service-dir>",
		Short: "Import a tor hidden-service directory into the onion service store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(args[0], args[1])
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(name, dir string) error {
	svc, err := tor.ParseServiceDir(name, dir)
	if err != nil {
		return err
	}
	path, err := tor.DefaultStorePath()
	if err != nil {
		return err
	}
	if err := tor.NewStore(path).Add(svc); err != nil {
		return err
	}
	fmt.Printf("imported %s as %q\n", svc.Hostname, name)
	return nil
}
