package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the Postgres connection used by the job archive and event journal
type DB struct {
	*sql.DB
}

// NewDB opens and pings a Postgres connection
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	variant         TEXT NOT NULL,
	mode            TEXT NOT NULL,
	repo_identifier TEXT NOT NULL DEFAULT '',
	session_id      TEXT,
	status          TEXT NOT NULL,
	last_poll_at    TIMESTAMPTZ,
	pr_number       INTEGER,
	pr_url          TEXT,
	pr_title        TEXT,
	failure_reason  TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS job_events (
	id        BIGSERIAL PRIMARY KEY,
	job_id    TEXT NOT NULL,
	at        TIMESTAMPTZ NOT NULL,
	status    TEXT NOT NULL,
	logs      TEXT[] NOT NULL DEFAULT '{}',
	pr_number INTEGER,
	pr_url    TEXT,
	pr_title  TEXT,
	plan      TEXT
);

CREATE INDEX IF NOT EXISTS job_events_job_id_at ON job_events (job_id, at);
`

// EnsureSchema creates the tables if they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
