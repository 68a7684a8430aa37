// Package repository persists consolidated reminders and owns the
// per-customer contact guard.
package repository

import (
	"context"
	"fmt"
	"time"

	"tahseel_backend/internal/escalation"
	"tahseel_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a reminder does not exist.
var ErrNotFound = apperr.NotFound("consolidated reminder not found")

// Status of a consolidated reminder.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the reminder left the schedulable state. Sent and
// delivered reminders are immutable; they represent mail that went out.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusDelivered || s == StatusFailed || s == StatusCancelled
}

// Reminder is one consolidated communication covering all of a customer's
// overdue invoices at creation time.
type Reminder struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	CustomerID       uuid.UUID
	InvoiceIDs       []uuid.UUID
	InvoiceCount     int
	TotalAmountCents int64
	Currency         string
	EscalationLevel  escalation.Level
	PriorityScore    int
	ScheduledFor     time.Time
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store is the persistence surface of the consolidation engine.
type Store interface {
	// ClaimContact is the concurrency guard for reminder creation: it
	// advances the customer's last consolidated contact stamp only when the
	// previous stamp is older than the cutoff. Exactly one concurrent
	// claimant observes true.
	ClaimContact(ctx context.Context, customerID uuid.UUID, now, cutoff time.Time) (bool, error)
	InsertReminder(ctx context.Context, r Reminder) error
	GetReminder(ctx context.Context, id uuid.UUID) (Reminder, error)
	ListReminders(ctx context.Context, orgID uuid.UUID, limit int) ([]Reminder, error)
	// CancelReminder cancels a scheduled reminder. Sent or delivered
	// reminders are immutable and reject the cancel.
	CancelReminder(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ClaimContact(ctx context.Context, customerID uuid.UUID, now, cutoff time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers
		SET last_consolidated_contact_at = $2
		WHERE id = $1
		  AND (last_consolidated_contact_at IS NULL OR last_consolidated_contact_at <= $3)`,
		customerID, now, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to claim customer contact: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const reminderColumns = `id, organization_id, customer_id, invoice_ids, invoice_count,
	total_amount_cents, currency, escalation_level, priority_score, scheduled_for,
	status, created_at, updated_at`

func (r *Repository) InsertReminder(ctx context.Context, rem Reminder) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO consolidated_reminders
			(id, organization_id, customer_id, invoice_ids, invoice_count,
			 total_amount_cents, currency, escalation_level, priority_score,
			 scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rem.ID, rem.OrganizationID, rem.CustomerID, rem.InvoiceIDs, rem.InvoiceCount,
		rem.TotalAmountCents, rem.Currency, rem.EscalationLevel.String(), rem.PriorityScore,
		rem.ScheduledFor, rem.Status)
	if err != nil {
		return fmt.Errorf("failed to insert consolidated reminder: %w", err)
	}
	return nil
}

func (r *Repository) GetReminder(ctx context.Context, id uuid.UUID) (Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM consolidated_reminders
		WHERE id = $1`, id)
	if err != nil {
		return Reminder{}, fmt.Errorf("failed to get consolidated reminder: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Reminder{}, fmt.Errorf("failed to get consolidated reminder: %w", err)
		}
		return Reminder{}, ErrNotFound
	}
	return scanReminder(rows)
}

func (r *Repository) ListReminders(ctx context.Context, orgID uuid.UUID, limit int) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM consolidated_reminders
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list consolidated reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consolidated reminders: %w", err)
	}
	return out, nil
}

func (r *Repository) CancelReminder(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE consolidated_reminders
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel consolidated reminder: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	rem, err := r.GetReminder(ctx, id)
	if err != nil {
		return err
	}
	return apperr.Conflict(fmt.Sprintf("reminder is %s and can no longer be cancelled", rem.Status))
}

// allowedPrior maps each delivery status to the statuses it may move from.
// Transitions only run forward, so a late or replayed callback can never
// rewind a sent or delivered reminder.
var allowedPrior = map[Status][]string{
	StatusSent:      {string(StatusScheduled)},
	StatusDelivered: {string(StatusSent)},
	StatusFailed:    {string(StatusScheduled), string(StatusSent)},
}

// CanTransition reports whether a reminder may move from one status to the
// other. Same-status updates are allowed so replayed callbacks stay no-ops.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, prior := range allowedPrior[to] {
		if prior == string(from) {
			return true
		}
	}
	return false
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	prior, ok := allowedPrior[status]
	if !ok {
		return apperr.Validation(fmt.Sprintf("reminder status cannot be set to %s directly", status))
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE consolidated_reminders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`, id, status, prior)
	if err != nil {
		return fmt.Errorf("failed to update reminder status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	rem, err := r.GetReminder(ctx, id)
	if err != nil {
		return err
	}
	if rem.Status == status {
		// Replayed callback, nothing to change.
		return nil
	}
	return apperr.Conflict(fmt.Sprintf("reminder is %s and cannot move to %s", rem.Status, status))
}

func scanReminder(rows pgx.Rows) (Reminder, error) {
	var rem Reminder
	var level string
	if err := rows.Scan(
		&rem.ID, &rem.OrganizationID, &rem.CustomerID, &rem.InvoiceIDs, &rem.InvoiceCount,
		&rem.TotalAmountCents, &rem.Currency, &level, &rem.PriorityScore, &rem.ScheduledFor,
		&rem.Status, &rem.CreatedAt, &rem.UpdatedAt,
	); err != nil {
		return Reminder{}, fmt.Errorf("failed to scan consolidated reminder: %w", err)
	}
	parsed, err := escalation.Parse(level)
	if err != nil {
		return Reminder{}, fmt.Errorf("reminder %s: %w", rem.ID, err)
	}
	rem.EscalationLevel = parsed
	return rem, nil
}
