package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tahseel_backend/internal/escalation"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const definitionColumns = `id, organization_id, name, is_active, created_at, updated_at`

func (r *Repository) ListActiveDefinitions(ctx context.Context, orgID uuid.UUID) ([]Definition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+definitionColumns+`
		FROM sequence_definitions
		WHERE organization_id = $1 AND is_active = TRUE
		ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sequence definitions: %w", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var d Definition
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.Name, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sequence definition: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sequence definitions: %w", err)
	}

	for i := range defs {
		steps, err := r.loadSteps(ctx, defs[i].ID)
		if err != nil {
			return nil, err
		}
		defs[i].Steps = steps
	}
	return defs, nil
}

func (r *Repository) GetDefinition(ctx context.Context, id uuid.UUID) (Definition, error) {
	var d Definition
	err := r.pool.QueryRow(ctx, `
		SELECT `+definitionColumns+`
		FROM sequence_definitions
		WHERE id = $1`, id).
		Scan(&d.ID, &d.OrganizationID, &d.Name, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Definition{}, ErrNotFound
		}
		return Definition{}, fmt.Errorf("failed to get sequence definition: %w", err)
	}

	d.Steps, err = r.loadSteps(ctx, d.ID)
	if err != nil {
		return Definition{}, err
	}
	return d, nil
}

func (r *Repository) loadSteps(ctx context.Context, seqID uuid.UUID) ([]Step, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT step_number, delay_days, subject_template, body_template, language, escalation_level, stop_conditions
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY step_number ASC`, seqID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequence steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var s Step
		var level string
		if err := rows.Scan(&s.Number, &s.DelayDays, &s.SubjectTemplate, &s.BodyTemplate, &s.Language, &level, &s.StopConditions); err != nil {
			return nil, fmt.Errorf("failed to scan sequence step: %w", err)
		}
		s.EscalationLevel, err = escalation.Parse(level)
		if err != nil {
			return nil, fmt.Errorf("sequence %s step %d: %w", seqID, s.Number, err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sequence steps: %w", err)
	}
	return steps, nil
}

const executionColumns = `id, sequence_id, invoice_id, organization_id, current_step_number,
	status, last_sent_at, next_action_at, stop_reason, created_at, updated_at`

func (r *Repository) StartExecution(ctx context.Context, seqID, invoiceID, orgID uuid.UUID, nextActionAt time.Time) (Execution, error) {
	// The partial unique index on (sequence_id, invoice_id) WHERE status =
	// 'active' makes exactly one concurrent insert win; the rest return no
	// row and map to ErrAlreadyActive.
	var e Execution
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sequence_executions (id, sequence_id, invoice_id, organization_id, current_step_number, status, next_action_at)
		VALUES ($1, $2, $3, $4, 0, 'active', $5)
		ON CONFLICT (sequence_id, invoice_id) WHERE status = 'active' DO NOTHING
		RETURNING `+executionColumns, uuid.New(), seqID, invoiceID, orgID, nextActionAt).
		Scan(&e.ID, &e.SequenceID, &e.InvoiceID, &e.OrganizationID, &e.CurrentStepNumber,
			&e.Status, &e.LastSentAt, &e.NextActionAt, &e.StopReason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Execution{}, ErrAlreadyActive
		}
		return Execution{}, fmt.Errorf("failed to start sequence execution: %w", err)
	}
	return e, nil
}

func (r *Repository) GetExecution(ctx context.Context, id uuid.UUID) (Execution, error) {
	var e Execution
	err := r.pool.QueryRow(ctx, `
		SELECT `+executionColumns+`
		FROM sequence_executions
		WHERE id = $1`, id).
		Scan(&e.ID, &e.SequenceID, &e.InvoiceID, &e.OrganizationID, &e.CurrentStepNumber,
			&e.Status, &e.LastSentAt, &e.NextActionAt, &e.StopReason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Execution{}, ErrNotFound
		}
		return Execution{}, fmt.Errorf("failed to get sequence execution: %w", err)
	}
	return e, nil
}

func (r *Repository) ListDueExecutions(ctx context.Context, orgID uuid.UUID, now time.Time, limit int) ([]Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM sequence_executions
		WHERE organization_id = $1
		  AND status = 'active'
		  AND next_action_at IS NOT NULL
		  AND next_action_at <= $2
		ORDER BY next_action_at ASC
		LIMIT $3`, orgID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due executions: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func (r *Repository) ListExecutions(ctx context.Context, orgID uuid.UUID, status *ExecutionStatus, limit int) ([]Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM sequence_executions
		WHERE organization_id = $1
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY updated_at DESC
		LIMIT $3`, orgID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func scanExecutions(rows pgx.Rows) ([]Execution, error) {
	var execs []Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.SequenceID, &e.InvoiceID, &e.OrganizationID, &e.CurrentStepNumber,
			&e.Status, &e.LastSentAt, &e.NextActionAt, &e.StopReason, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}
	return execs, nil
}

func (r *Repository) MarkStepEnqueued(ctx context.Context, id uuid.UUID, stepNumber int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_executions
		SET current_step_number = $2, next_action_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`, id, stepNumber)
	if err != nil {
		return fmt.Errorf("failed to mark step enqueued: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) RecordSent(ctx context.Context, id uuid.UUID, sentAt time.Time, nextActionAt *time.Time, completed bool) error {
	status := StatusActive
	if completed {
		status = StatusCompleted
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_executions
		SET last_sent_at = $2, next_action_at = $3, status = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`, id, sentAt, nextActionAt, status)
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) StopExecution(ctx context.Context, id uuid.UUID, reason string) error {
	// Terminal states are left untouched so repeated stops are no-ops.
	_, err := r.pool.Exec(ctx, `
		UPDATE sequence_executions
		SET status = 'stopped', stop_reason = $2, next_action_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`, id, reason)
	if err != nil {
		return fmt.Errorf("failed to stop execution: %w", err)
	}
	return nil
}
