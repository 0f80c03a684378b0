package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/otcheredev/ris-viewer-manager/internal/config"
	"github.com/otcheredev/ris-viewer-manager/internal/database"
	"github.com/otcheredev/ris-viewer-manager/pkg/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "viewerctl",
		Short:        "Operate the viewer manager: connectors, versions and archive searches",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger.InitWriter(logLevel, "console", cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newConnectorsCommand(),
		newVersionCommand(),
		newSearchCommand(),
	)
	return root
}

// printJSON writes v indented to the command output
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// connectDatabase opens the management database configured in the
// environment
func connectDatabase() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return database.Connect(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	})
}
