package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/realestate/server/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Create missing tables and indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
		log.Info("schema up to date", zap.Strings("tables", database.Tables))
		return nil
	},
}

var dropConfirmed bool

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Drop every table owned by the service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !dropConfirmed {
			return fmt.Errorf("refusing to drop tables without --yes")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.DropSchema(ctx, db); err != nil {
			return err
		}
		log.Warn("schema dropped", zap.Strings("tables", database.Tables))
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().BoolVar(&dropConfirmed, "yes", false, "confirm dropping all tables")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}
