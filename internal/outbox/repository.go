package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "outbox repository not configured"

// Stats summarizes queue health for the status endpoint.
type Stats struct {
	Queued         int
	ScheduledToday int
	FailedLastHour int
}

// Store is the queue interface consumed by the orchestrator and services.
type Store interface {
	Enqueue(ctx context.Context, p InsertParams) (uuid.UUID, error)
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]Item, error)
	MarkSent(ctx context.Context, id uuid.UUID, externalMessageID string) error
	RescheduleRetry(ctx context.Context, id uuid.UUID, nextAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	UpdateDeliveryStatus(ctx context.Context, externalMessageID string, delivered bool, detail string) (Item, error)
	QueueStats(ctx context.Context, now time.Time) (Stats, error)
}

// Repository persists outbound items in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates an outbox repository backed by the given pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Enqueue stores a new item with status pending.
func (r *Repository) Enqueue(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if r == nil || r.pool == nil {
		return uuid.Nil, errors.New(errRepoNotConfigured)
	}
	if p.OrganizationID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("organizationId is required")
	}
	if p.Recipient == "" {
		return uuid.Nil, fmt.Errorf("recipient is required")
	}
	if p.ScheduledFor.IsZero() {
		p.ScheduledFor = time.Now().UTC()
	}
	if p.MaxRetries < 1 {
		p.MaxRetries = 5
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO outbound_items
		   (organization_id, execution_id, reminder_id, recipient, subject, body, language,
		    scheduled_for, max_retries, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		p.OrganizationID, p.ExecutionID, p.ReminderID, p.Recipient, p.Subject, p.Body,
		p.Language, p.ScheduledFor, p.MaxRetries, string(StatusPending),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// ClaimDue atomically claims up to limit due items, oldest scheduled first.
// Claimed rows move to "sending" so overlapping invocations cannot drain the
// same item twice; items abandoned mid-send by a killed run become claimable
// again after the stale window.
func (r *Repository) ClaimDue(ctx context.Context, limit int, now time.Time) ([]Item, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM outbound_items
		WHERE (status = 'pending' AND scheduled_for <= $2)
		   OR (status = 'sending' AND updated_at < $3)
		ORDER BY scheduled_for ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE outbound_items o
	SET status = 'sending', updated_at = now()
	FROM cte
	WHERE o.id = cte.id
	RETURNING o.id, o.organization_id, o.execution_id, o.reminder_id, o.recipient, o.subject,
	          o.body, o.language, o.scheduled_for, o.retry_count, o.max_retries, o.status,
	          o.external_message_id, o.last_error, o.created_at, o.updated_at`,
		limit, now, now.Add(-staleClaim))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// MarkSent records a successful handoff to the delivery collaborator.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, externalMessageID string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE outbound_items
		 SET status = 'sent', external_message_id = $2, last_error = NULL, updated_at = now()
		 WHERE id = $1`,
		id, externalMessageID,
	)
	return err
}

// RescheduleRetry puts a failed item back to pending with an incremented
// retry counter and a new scheduled time.
func (r *Repository) RescheduleRetry(ctx context.Context, id uuid.UUID, nextAt time.Time, lastError string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE outbound_items
		 SET status = 'pending', retry_count = retry_count + 1, scheduled_for = $2,
		     last_error = $3, updated_at = now()
		 WHERE id = $1`,
		id, nextAt, lastError,
	)
	return err
}

// MarkFailed records a permanent delivery failure.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE outbound_items
		 SET status = 'failed', retry_count = retry_count + 1, last_error = $2, updated_at = now()
		 WHERE id = $1`,
		id, lastError,
	)
	return err
}

// UpdateDeliveryStatus applies a delivery-status callback keyed by the
// external message id and returns the updated item.
func (r *Repository) UpdateDeliveryStatus(ctx context.Context, externalMessageID string, delivered bool, detail string) (Item, error) {
	if r == nil || r.pool == nil {
		return Item{}, errors.New(errRepoNotConfigured)
	}

	status := StatusDelivered
	var lastError *string
	if !delivered {
		status = StatusFailed
		lastError = &detail
	}

	rows, err := r.pool.Query(ctx,
		`UPDATE outbound_items
		 SET status = $2, last_error = $3, updated_at = now()
		 WHERE external_message_id = $1
		 RETURNING id, organization_id, execution_id, reminder_id, recipient, subject, body,
		           language, scheduled_for, retry_count, max_retries, status,
		           external_message_id, last_error, created_at, updated_at`,
		externalMessageID, string(status), lastError)
	if err != nil {
		return Item{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Item{}, err
		}
		return Item{}, pgx.ErrNoRows
	}
	return scanItem(rows)
}

// QueueStats returns queue depth figures for health reporting.
func (r *Repository) QueueStats(ctx context.Context, now time.Time) (Stats, error) {
	if r == nil || r.pool == nil {
		return Stats{}, errors.New(errRepoNotConfigured)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var s Stats
	err := r.pool.QueryRow(ctx,
		`SELECT
		   count(*) FILTER (WHERE status IN ('pending', 'sending')),
		   count(*) FILTER (WHERE status = 'pending' AND scheduled_for >= $1 AND scheduled_for < $2),
		   count(*) FILTER (WHERE status = 'failed' AND updated_at >= $3)
		 FROM outbound_items`,
		dayStart, dayStart.AddDate(0, 0, 1), now.Add(-time.Hour),
	).Scan(&s.Queued, &s.ScheduledToday, &s.FailedLastHour)
	if err != nil {
		return Stats{}, err
	}
	return s, nil
}

func scanItem(rows pgx.Rows) (Item, error) {
	var item Item
	var status string
	if err := rows.Scan(
		&item.ID, &item.OrganizationID, &item.ExecutionID, &item.ReminderID, &item.Recipient,
		&item.Subject, &item.Body, &item.Language, &item.ScheduledFor, &item.RetryCount,
		&item.MaxRetries, &status, &item.ExternalMessageID, &item.LastError,
		&item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return Item{}, err
	}
	item.Status = Status(status)
	return item, nil
}
