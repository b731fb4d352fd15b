// ABOUTME: SQLite backend constructor using modernc.org/sqlite
// ABOUTME: Creates the schema on open; suited to single-node deployments and tests

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// NewSQLiteStore opens (or creates) a SQLite database at the given
// path. The schema is created if it doesn't exist, and parent
// directories are created if needed.
func NewSQLiteStore(path string) (*SQLStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := newSQLStore(db, dialectSQLite, slog.Default())

	if err := s.createSQLiteSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("sqlite store opened", "path", path)
	return s, nil
}

func (s *SQLStore) createSQLiteSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_id TEXT UNIQUE,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT,
		access_enabled INTEGER NOT NULL DEFAULT 0,
		permissions TEXT NOT NULL DEFAULT '{}',
		linked_record_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		last_login_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS oauth_clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		redirect_uris TEXT NOT NULL DEFAULT '[]',
		logo_uri TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS opportunities (
		id TEXT PRIMARY KEY,
		opportunity_name TEXT NOT NULL,
		agency TEXT NOT NULL,
		vehicle TEXT,
		sub_vehicle TEXT,
		type TEXT,
		priority TEXT,
		rfi_due TEXT,
		rfi_submitted INTEGER,
		status TEXT,
		anticipated_solicitation_release TEXT,
		anticipated_award TEXT,
		actual_solicitation_release TEXT,
		submission_due TEXT,
		award_date TEXT,
		start_date TEXT,
		bidding_entity TEXT,
		prime_sub TEXT,
		new_recompete TEXT,
		outcome TEXT,
		awardee TEXT,
		period_of_performance TEXT,
		est_value REAL,
		est_fte REAL,
		notes TEXT,
		ai_research TEXT,
		partner_id TEXT,
		project_deliverables TEXT,
		lcats TEXT,
		solicitation_number TEXT,
		probability INTEGER,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities(status);
	CREATE INDEX IF NOT EXISTS idx_opportunities_priority ON opportunities(priority);
	CREATE INDEX IF NOT EXISTS idx_opportunities_created_at ON opportunities(created_at);

	CREATE TABLE IF NOT EXISTS opportunity_notes (
		id TEXT PRIMARY KEY,
		opportunity_id TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		date TIMESTAMP NOT NULL,
		attachments TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notes_opportunity_id ON opportunity_notes(opportunity_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}
