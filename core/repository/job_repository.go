package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"command-center/core/models"
)

// JobArchive keeps the final state of jobs evicted from the registry
type JobArchive struct {
	db *DB
}

// NewJobArchive creates a new job archive
func NewJobArchive(db *DB) *JobArchive {
	return &JobArchive{db: db}
}

// SaveJob inserts or replaces a job's archived state
func (a *JobArchive) SaveJob(ctx context.Context, job models.JobState) error {
	query := `
		INSERT INTO jobs (
			id, variant, mode, repo_identifier, session_id, status, last_poll_at,
			pr_number, pr_url, pr_title, failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			repo_identifier = EXCLUDED.repo_identifier,
			session_id = EXCLUDED.session_id,
			status = EXCLUDED.status,
			last_poll_at = EXCLUDED.last_poll_at,
			pr_number = EXCLUDED.pr_number,
			pr_url = EXCLUDED.pr_url,
			pr_title = EXCLUDED.pr_title,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = EXCLUDED.updated_at
	`

	var prNumber sql.NullInt64
	var prURL, prTitle sql.NullString
	if job.PR != nil {
		prNumber = sql.NullInt64{Int64: int64(job.PR.Number), Valid: true}
		prURL = sql.NullString{String: job.PR.URL, Valid: true}
		prTitle = sql.NullString{String: job.PR.Title, Valid: true}
	}

	_, err := a.db.ExecContext(ctx, query,
		job.ID,
		job.Variant,
		job.Mode,
		job.RepoIdentifier,
		job.SessionID,
		job.Status,
		job.LastPoll,
		prNumber,
		prURL,
		prTitle,
		job.FailureReason,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob retrieves an archived job by ID
func (a *JobArchive) GetJob(ctx context.Context, id string) (models.JobState, error) {
	query := `
		SELECT id, variant, mode, repo_identifier, session_id, status, last_poll_at,
			pr_number, pr_url, pr_title, failure_reason, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	var job models.JobState
	var sessionID sql.NullString
	var lastPoll sql.NullTime
	var prNumber sql.NullInt64
	var prURL, prTitle sql.NullString

	err := a.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.Variant,
		&job.Mode,
		&job.RepoIdentifier,
		&sessionID,
		&job.Status,
		&lastPoll,
		&prNumber,
		&prURL,
		&prTitle,
		&job.FailureReason,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.JobState{}, ErrJobNotFound
	}
	if err != nil {
		return models.JobState{}, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	if sessionID.Valid {
		job.SessionID = &sessionID.String
	}
	if lastPoll.Valid {
		job.LastPoll = &lastPoll.Time
	}
	if prNumber.Valid {
		job.PR = &models.PrDetails{Number: int(prNumber.Int64), URL: prURL.String, Title: prTitle.String}
	}
	return job, nil
}
