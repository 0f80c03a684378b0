package main

import (
	"context"
	"fmt"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/config"
	"github.com/otcheredev/ris-viewer-manager/internal/connectors"
	"github.com/spf13/cobra"
)

func newConnectorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connectors",
		Short: "Check connector configuration files",
	}
	cmd.AddCommand(newConnectorsValidateCommand(), newConnectorsTestCommand())
	return cmd
}

func newConnectorsValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a connector file without starting any connector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := config.LoadConnectors(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d connector(s)\n", args[0], set.Len())
			for _, prop := range set.All() {
				fmt.Fprintf(out, "  %-20s %-10s %s\n", prop.ID, prop.Type, prop.Wado.BasicURL)
			}
			return nil
		},
	}
}

func newConnectorsTestCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "test <file> <id>",
		Short: "Build the connectors of a file and ping one of them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(args[0])
			if err != nil {
				return err
			}
			defer registry.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			status, err := registry.Ping(ctx, args[1])
			if status != nil {
				if printErr := printJSON(cmd.OutOrStdout(), status); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "ping timeout")
	return cmd
}

// loadRegistry builds every connector of file, without a search cache
func loadRegistry(file string) (*connectors.Registry, error) {
	set, err := config.LoadConnectors(file)
	if err != nil {
		return nil, err
	}
	registry := connectors.NewRegistry(nil, 0)
	if err := registry.Apply(set); err != nil {
		return nil, err
	}
	return registry, nil
}
