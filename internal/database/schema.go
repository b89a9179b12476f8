package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Tables lists every table owned by the service, children first, so that
// dropping them in order never trips a foreign key.
var Tables = []string{
	"lot_location",
	"subdivision_location",
	"lot",
	"subdivision",
	"app_location",
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS app_location (
		id TEXT PRIMARY KEY,
		lat DOUBLE PRECISION NOT NULL,
		long DOUBLE PRECISION NOT NULL,
		geohash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_app_location_geohash ON app_location(geohash)`,
	`CREATE TABLE IF NOT EXISTS subdivision (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subdivision_name_lower ON subdivision(LOWER(name))`,
	`CREATE TABLE IF NOT EXISTS lot (
		name TEXT NOT NULL,
		subdivision_id TEXT NOT NULL REFERENCES subdivision(id) ON DELETE CASCADE,
		ordinal INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (name, subdivision_id)
	)`,
	`ALTER TABLE lot ADD COLUMN IF NOT EXISTS ordinal INT NOT NULL DEFAULT 0`,
	`CREATE INDEX IF NOT EXISTS idx_lot_subdivision ON lot(subdivision_id)`,
	`CREATE TABLE IF NOT EXISTS subdivision_location (
		subdivision_id TEXT NOT NULL REFERENCES subdivision(id) ON DELETE CASCADE,
		location_id TEXT NOT NULL REFERENCES app_location(id),
		seq INT NOT NULL,
		PRIMARY KEY (subdivision_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subdivision_location_location ON subdivision_location(location_id)`,
	`CREATE TABLE IF NOT EXISTS lot_location (
		lot_name TEXT NOT NULL,
		subdivision_id TEXT NOT NULL,
		location_id TEXT NOT NULL REFERENCES app_location(id),
		seq INT NOT NULL,
		PRIMARY KEY (lot_name, subdivision_id, seq),
		FOREIGN KEY (lot_name, subdivision_id) REFERENCES lot(name, subdivision_id) ON DELETE CASCADE
	)`,
}

// EnsureSchema creates the tables and indexes the service needs. Every
// statement is idempotent, so it is safe to run on each start.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

// DropSchema removes every table owned by the service.
func DropSchema(ctx context.Context, db *sqlx.DB) error {
	for _, table := range Tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
