// ABOUTME: Postgres backend constructor via the pgx stdlib adapter
// ABOUTME: Shares the SQL code path with SQLite; placeholders are rebound to $N

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresStore connects to Postgres using the given DSN and
// ensures the schema exists.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := newSQLStore(db, dialectPostgres, slog.Default())

	if err := s.createPostgresSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("postgres store opened")
	return s, nil
}

func (s *SQLStore) createPostgresSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_id TEXT UNIQUE,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT,
		access_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		permissions TEXT NOT NULL DEFAULT '{}',
		linked_record_id TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		last_login_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS oauth_clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		redirect_uris TEXT NOT NULL DEFAULT '[]',
		logo_uri TEXT,
		created_at TIMESTAMPTZ NOT NULL
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
		rfi_submitted BOOLEAN,
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
		est_value DOUBLE PRECISION,
		est_fte DOUBLE PRECISION,
		notes TEXT,
		ai_research TEXT,
		partner_id TEXT,
		project_deliverables TEXT,
		lcats TEXT,
		solicitation_number TEXT,
		probability INTEGER,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities(status);
	CREATE INDEX IF NOT EXISTS idx_opportunities_priority ON opportunities(priority);
	CREATE INDEX IF NOT EXISTS idx_opportunities_created_at ON opportunities(created_at);

	CREATE TABLE IF NOT EXISTS opportunity_notes (
		id TEXT PRIMARY KEY,
		opportunity_id TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		attachments TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notes_opportunity_id ON opportunity_notes(opportunity_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}
