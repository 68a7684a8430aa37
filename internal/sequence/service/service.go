// Package service runs follow-up sequence executions: starting them for
// newly overdue invoices, advancing due ones through their steps, and
// reacting to delivery outcomes.
package service

import (
	"context"
	"fmt"
	"time"

	"tahseel_backend/internal/calendar"
	"tahseel_backend/internal/email"
	"tahseel_backend/internal/events"
	"tahseel_backend/internal/invoices"
	"tahseel_backend/internal/outbox"
	"tahseel_backend/internal/sequence/repository"
	"tahseel_backend/platform/apperr"
	"tahseel_backend/platform/config"
	"tahseel_backend/platform/logger"

	"github.com/google/uuid"
)

// InvoiceReader is the narrow read surface the state machine needs from the
// invoice snapshot.
type InvoiceReader interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (invoices.Invoice, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (invoices.Customer, error)
}

// Queue accepts outbound items for later delivery. Satisfied by the outbox
// repository.
type Queue interface {
	Enqueue(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
}

// Service is the sequence execution state machine.
type Service struct {
	repo       repository.Store
	invoices   InvoiceReader
	queue      Queue
	bus        events.Bus
	log        *logger.Logger
	maxRetries int
}

func New(repo repository.Store, inv InvoiceReader, queue Queue, bus events.Bus, cfg config.FollowupConfig, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		invoices:   inv,
		queue:      queue,
		bus:        bus,
		log:        log,
		maxRetries: cfg.GetMaxRetries(),
	}
}

// ValidateDefinition checks the structural rules a definition must satisfy
// before any execution may advance through it: at least one step, step
// numbers contiguous from 1, non-negative delays, and escalation levels
// that never de-escalate.
func ValidateDefinition(def repository.Definition) error {
	if len(def.Steps) == 0 {
		return apperr.Validation("sequence has no steps")
	}
	for i, step := range def.Steps {
		if step.Number != i+1 {
			return apperr.Validation(fmt.Sprintf("step numbers must be contiguous from 1, got %d at position %d", step.Number, i+1))
		}
		if step.DelayDays < 0 {
			return apperr.Validation(fmt.Sprintf("step %d has negative delay", step.Number))
		}
		if !step.EscalationLevel.Valid() {
			return apperr.Validation(fmt.Sprintf("step %d has invalid escalation level", step.Number))
		}
		if i > 0 && step.EscalationLevel < def.Steps[i-1].EscalationLevel {
			return apperr.Validation(fmt.Sprintf("step %d de-escalates from %s to %s",
				step.Number, def.Steps[i-1].EscalationLevel, step.EscalationLevel))
		}
		if step.SubjectTemplate == "" || step.BodyTemplate == "" {
			return apperr.Validation(fmt.Sprintf("step %d is missing templates", step.Number))
		}
	}
	return nil
}

// Start creates an active execution for the (sequence, invoice) pair with its
// action timer armed at now. Exactly one concurrent caller wins; the others
// receive repository.ErrAlreadyActive.
func (s *Service) Start(ctx context.Context, orgID uuid.UUID, cand invoices.TriggerCandidate, now time.Time) (repository.Execution, error) {
	return s.repo.StartExecution(ctx, cand.SequenceID, cand.InvoiceID, orgID, now)
}

// AdvanceOutcome says what a call to Advance did with the execution.
type AdvanceOutcome int

const (
	AdvanceNoop AdvanceOutcome = iota
	AdvanceEnqueued
	AdvanceStopped
)

// Advance moves one due execution forward: it re-checks stop conditions
// against current invoice state, renders the next step and enqueues it for
// the next sendable instant.
func (s *Service) Advance(ctx context.Context, org invoices.Organization, cal calendar.Config, execID uuid.UUID, now time.Time) (AdvanceOutcome, error) {
	exec, err := s.repo.GetExecution(ctx, execID)
	if err != nil {
		return AdvanceNoop, err
	}
	if exec.Status != repository.StatusActive {
		return AdvanceNoop, nil
	}

	def, err := s.repo.GetDefinition(ctx, exec.SequenceID)
	if err != nil {
		return AdvanceNoop, err
	}
	if err := ValidateDefinition(def); err != nil {
		return AdvanceNoop, fmt.Errorf("sequence %s: %w", def.ID, err)
	}

	inv, err := s.invoices.GetInvoice(ctx, exec.InvoiceID)
	if err != nil {
		return AdvanceNoop, err
	}

	nextNumber := exec.CurrentStepNumber + 1
	step, ok := def.StepByNumber(nextNumber)
	if !ok {
		// Final step already enqueued; completion happens on its send result.
		return AdvanceNoop, nil
	}

	if reason, stopped := stopReason(inv.Status, step); stopped {
		if err := s.repo.StopExecution(ctx, exec.ID, reason); err != nil {
			return AdvanceNoop, err
		}
		s.log.Info("execution_stopped",
			"execution_id", exec.ID.String(),
			"invoice_id", exec.InvoiceID.String(),
			"reason", reason,
		)
		s.publishStopped(ctx, exec.ID, exec.InvoiceID, reason)
		return AdvanceStopped, nil
	}

	customer, err := s.invoices.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return AdvanceNoop, err
	}

	// Delay is civil days from the previous send, clamped to now so a
	// backlog never schedules into the past.
	base := now
	if exec.LastSentAt != nil {
		base = exec.LastSentAt.In(cal.Location).AddDate(0, 0, step.DelayDays)
		if base.Before(now) {
			base = now
		}
	}
	scheduled := cal.NextSendable(base)

	language := step.Language
	if language == "" {
		language = customer.Language
	}

	subject, body, err := email.RenderStep(step.SubjectTemplate, step.BodyTemplate, email.StepData{
		CustomerName:     customer.Name,
		OrganizationName: org.Name,
		InvoiceNumber:    inv.Number,
		AmountFormatted:  email.FormatAmount(inv.AmountCents, inv.Currency),
		DueDate:          email.FormatDate(inv.DueDate),
		DaysOverdue:      inv.DaysOverdue(now),
	})
	if err != nil {
		return AdvanceNoop, fmt.Errorf("sequence %s step %d: %w", def.ID, step.Number, err)
	}

	if _, err := s.queue.Enqueue(ctx, outbox.InsertParams{
		OrganizationID: org.ID,
		ExecutionID:    &exec.ID,
		Recipient:      customer.Email,
		Subject:        subject,
		Body:           body,
		Language:       language,
		ScheduledFor:   scheduled,
		MaxRetries:     s.maxRetries,
	}); err != nil {
		return AdvanceNoop, fmt.Errorf("failed to enqueue step %d: %w", step.Number, err)
	}

	if err := s.repo.MarkStepEnqueued(ctx, exec.ID, step.Number); err != nil {
		return AdvanceNoop, err
	}

	s.log.Info("step_enqueued",
		"execution_id", exec.ID.String(),
		"step", step.Number,
		"escalation", step.EscalationLevel.String(),
		"scheduled_for", scheduled.Format(time.RFC3339),
	)
	return AdvanceEnqueued, nil
}

// RecordSent reacts to a successful delivery of the current step: it stores
// the send instant and either completes the execution or arms the timer for
// the next step's delay. Safe to call more than once; terminal executions
// are left alone.
func (s *Service) RecordSent(ctx context.Context, execID uuid.UUID, sentAt time.Time) error {
	exec, err := s.repo.GetExecution(ctx, execID)
	if err != nil {
		return err
	}
	if exec.Status != repository.StatusActive {
		return nil
	}

	def, err := s.repo.GetDefinition(ctx, exec.SequenceID)
	if err != nil {
		return err
	}

	completed := exec.CurrentStepNumber >= def.LastStepNumber()
	var nextActionAt *time.Time
	if !completed {
		next, ok := def.StepByNumber(exec.CurrentStepNumber + 1)
		if !ok {
			completed = true
		} else {
			due := sentAt.AddDate(0, 0, next.DelayDays)
			nextActionAt = &due
		}
	}
	return s.repo.RecordSent(ctx, exec.ID, sentAt, nextActionAt, completed)
}

// RecordDeliveryFailed stops an execution whose current step exhausted its
// delivery retries. Retrying the send is the queue's job; once the queue
// gives up the sequence cannot make progress.
func (s *Service) RecordDeliveryFailed(ctx context.Context, execID uuid.UUID, reason string) error {
	exec, err := s.repo.GetExecution(ctx, execID)
	if err != nil {
		return err
	}
	full := "delivery failed: " + reason
	if err := s.repo.StopExecution(ctx, execID, full); err != nil {
		return err
	}
	if exec.Status == repository.StatusActive {
		s.publishStopped(ctx, execID, exec.InvoiceID, full)
	}
	return nil
}

// Stop terminates an execution on request, recording why. Stopping an
// already terminal execution is a no-op.
func (s *Service) Stop(ctx context.Context, execID uuid.UUID, reason string) error {
	if reason == "" {
		return apperr.Validation("stop reason is required")
	}
	exec, err := s.repo.GetExecution(ctx, execID)
	if err != nil {
		return err
	}
	if err := s.repo.StopExecution(ctx, execID, reason); err != nil {
		return err
	}
	if exec.Status == repository.StatusActive {
		s.publishStopped(ctx, execID, exec.InvoiceID, reason)
	}
	return nil
}

func (s *Service) publishStopped(ctx context.Context, execID, invoiceID uuid.UUID, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.ExecutionStopped{
		BaseEvent:   events.NewBaseEvent(),
		ExecutionID: execID,
		InvoiceID:   invoiceID,
		Reason:      reason,
	})
}

// ListDefinitions returns the active definitions for an organization.
func (s *Service) ListDefinitions(ctx context.Context, orgID uuid.UUID) ([]repository.Definition, error) {
	return s.repo.ListActiveDefinitions(ctx, orgID)
}

// ListExecutions returns executions for an organization, optionally
// filtered by status.
func (s *Service) ListExecutions(ctx context.Context, orgID uuid.UUID, status *repository.ExecutionStatus, limit int) ([]repository.Execution, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListExecutions(ctx, orgID, status, limit)
}

// ListDue returns active executions whose action timer has elapsed.
func (s *Service) ListDue(ctx context.Context, orgID uuid.UUID, now time.Time, limit int) ([]repository.Execution, error) {
	return s.repo.ListDueExecutions(ctx, orgID, now, limit)
}

// stopReason checks invoice state against the terminal statuses and the
// step's own stop conditions.
func stopReason(invoiceStatus string, step repository.Step) (string, bool) {
	switch invoiceStatus {
	case invoices.StatusPaid:
		return "invoice paid", true
	case invoices.StatusDisputed:
		return "invoice disputed", true
	case invoices.StatusDeleted:
		return "invoice deleted", true
	}
	for _, cond := range step.StopConditions {
		if cond == invoiceStatus {
			return "invoice " + invoiceStatus, true
		}
	}
	return "", false
}
