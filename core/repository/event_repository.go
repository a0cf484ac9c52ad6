package repository

import (
	"context"
	"database/sql"
	"fmt"

	"command-center/core/models"

	"github.com/lib/pq"
)

// EventJournal persists every JobUpdateEvent so a job's history outlives the
// websocket stream
type EventJournal struct {
	db *DB
}

// NewEventJournal creates a new event journal
func NewEventJournal(db *DB) *EventJournal {
	return &EventJournal{db: db}
}

// Emit appends one event to the journal
func (j *EventJournal) Emit(ctx context.Context, event models.JobUpdateEvent) error {
	query := `
		INSERT INTO job_events (job_id, at, status, logs, pr_number, pr_url, pr_title, plan)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var prNumber sql.NullInt64
	var prURL, prTitle, plan sql.NullString
	if event.PrDetails != nil {
		prNumber = sql.NullInt64{Int64: int64(event.PrDetails.Number), Valid: true}
		prURL = sql.NullString{String: event.PrDetails.URL, Valid: true}
		prTitle = sql.NullString{String: event.PrDetails.Title, Valid: true}
	}
	if event.Plan != nil {
		plan = sql.NullString{String: *event.Plan, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, query,
		event.ID,
		event.At,
		event.Status,
		pq.Array(event.Logs),
		prNumber,
		prURL,
		prTitle,
		plan,
	)
	if err != nil {
		return fmt.Errorf("failed to journal event for job %s: %w", event.ID, err)
	}
	return nil
}

// GetJobEvents retrieves up to limit events for a job in emission order
func (j *EventJournal) GetJobEvents(ctx context.Context, jobID string, limit int) ([]models.JobUpdateEvent, error) {
	query := `
		SELECT job_id, at, status, logs, pr_number, pr_url, pr_title, plan
		FROM job_events
		WHERE job_id = $1
		ORDER BY id ASC
		LIMIT $2
	`

	rows, err := j.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.JobUpdateEvent
	for rows.Next() {
		var event models.JobUpdateEvent
		var logs []string
		var prNumber sql.NullInt64
		var prURL, prTitle, plan sql.NullString

		err := rows.Scan(
			&event.ID,
			&event.At,
			&event.Status,
			pq.Array(&logs),
			&prNumber,
			&prURL,
			&prTitle,
			&plan,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Logs = logs
		if prNumber.Valid {
			event.PrDetails = &models.PrDetails{Number: int(prNumber.Int64), URL: prURL.String, Title: prTitle.String}
		}
		if plan.Valid {
			p := plan.String
			event.Plan = &p
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
