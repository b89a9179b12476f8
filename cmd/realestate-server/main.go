// Package main provides the real-estate server binary: the HTTP API and
// schema management.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/realestate/server/internal/config"
	"github.com/realestate/server/internal/logger"
)

var (
	// cfg and log are initialized by PersistentPreRunE for every command.
	cfg *config.Config
	log *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "realestate-server",
	Short: "Real-estate subdivision and lot service",
	Long: `realestate-server stores subdivisions and lots as rings of deduplicated
locations in Postgres and serves creation, search and aggregate reads over HTTP.
Configuration is read from the environment and an optional .env file.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if log != nil {
			_ = log.Sync()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// setup loads configuration and builds the process logger.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err = logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	if cfg.Server.IsDevelopment() {
		log = log.WithOptions(zap.Development())
	}
	zap.ReplaceGlobals(log)
	return nil
}
