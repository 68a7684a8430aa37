// Package repository persists follow-up run reports.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRecord is the persisted report of one orchestrator invocation.
type RunRecord struct {
	ID                 uuid.UUID
	StartedAt          time.Time
	DurationMs         int64
	Success            bool
	Skipped            bool
	SkipReason         *string
	TriggersStarted    int
	ExecutionsAdvanced int
	ExecutionsStopped  int
	RemindersCreated   int
	EmailsSent         int
	EmailsFailed       int
	EmailsSaved        int
	Errors             []string
	Warnings           []string
	NextRunAt          *time.Time
	CreatedAt          time.Time
}

// Store persists and reads run records.
type Store interface {
	InsertRun(ctx context.Context, rec RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertRun(ctx context.Context, rec RunRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO follow_up_runs
			(id, started_at, duration_ms, success, skipped, skip_reason,
			 triggers_started, executions_advanced, executions_stopped,
			 reminders_created, emails_sent, emails_failed, emails_saved,
			 errors, warnings, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID, rec.StartedAt, rec.DurationMs, rec.Success, rec.Skipped, rec.SkipReason,
		rec.TriggersStarted, rec.ExecutionsAdvanced, rec.ExecutionsStopped,
		rec.RemindersCreated, rec.EmailsSent, rec.EmailsFailed, rec.EmailsSaved,
		rec.Errors, rec.Warnings, rec.NextRunAt)
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit < 1 || limit > 50 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, started_at, duration_ms, success, skipped, skip_reason,
		       triggers_started, executions_advanced, executions_stopped,
		       reminders_created, emails_sent, emails_failed, emails_saved,
		       errors, warnings, next_run_at, created_at
		FROM follow_up_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.ID, &rec.StartedAt, &rec.DurationMs, &rec.Success, &rec.Skipped, &rec.SkipReason,
			&rec.TriggersStarted, &rec.ExecutionsAdvanced, &rec.ExecutionsStopped,
			&rec.RemindersCreated, &rec.EmailsSent, &rec.EmailsFailed, &rec.EmailsSaved,
			&rec.Errors, &rec.Warnings, &rec.NextRunAt, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run records: %w", err)
	}
	return out, nil
}
