// Package repository persists sequence definitions and execution records.
package repository

import (
	"context"
	"time"

	"tahseel_backend/internal/escalation"
	"tahseel_backend/platform/apperr"

	"github.com/google/uuid"
)

// ErrAlreadyActive is returned when an active execution already exists for
// the (sequence, invoice) pair. Trigger detection treats it as a no-op.
var ErrAlreadyActive = apperr.Conflict("an active execution already exists for this sequence and invoice")

// ErrNotFound is returned when a definition or execution does not exist.
var ErrNotFound = apperr.NotFound("sequence record not found")

// Step is one escalation step inside a sequence definition.
type Step struct {
	Number          int
	DelayDays       int
	SubjectTemplate string
	BodyTemplate    string
	Language        string
	EscalationLevel escalation.Level
	StopConditions  []string
}

// Definition is a named, ordered list of escalation steps owned by an
// organization. Mutated by external CRUD; the engine reads active ones.
type Definition struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	IsActive       bool
	Steps          []Step
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LastStepNumber returns the number of the final step, zero for an empty
// definition.
func (d Definition) LastStepNumber() int {
	if len(d.Steps) == 0 {
		return 0
	}
	return d.Steps[len(d.Steps)-1].Number
}

// StepByNumber returns the step with the given number.
func (d Definition) StepByNumber(n int) (Step, bool) {
	for _, s := range d.Steps {
		if s.Number == n {
			return s, true
		}
	}
	return Step{}, false
}

// ExecutionStatus is the lifecycle state of one invoice's run through a
// sequence.
type ExecutionStatus string

const (
	StatusActive    ExecutionStatus = "active"
	StatusCompleted ExecutionStatus = "completed"
	StatusStopped   ExecutionStatus = "stopped"
)

// Execution tracks one invoice's progress through one sequence.
// CurrentStepNumber is the last step enqueued for delivery; zero means no
// step has been enqueued yet. NextActionAt is nil while a send is in
// flight or after the run terminates.
type Execution struct {
	ID                uuid.UUID
	SequenceID        uuid.UUID
	InvoiceID         uuid.UUID
	OrganizationID    uuid.UUID
	CurrentStepNumber int
	Status            ExecutionStatus
	LastSentAt        *time.Time
	NextActionAt      *time.Time
	StopReason        *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DefinitionReader reads sequence definitions.
type DefinitionReader interface {
	ListActiveDefinitions(ctx context.Context, orgID uuid.UUID) ([]Definition, error)
	GetDefinition(ctx context.Context, id uuid.UUID) (Definition, error)
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	// StartExecution atomically creates an active execution for the pair.
	// Returns ErrAlreadyActive when one already exists; concurrent starts
	// resolve to exactly one created record.
	StartExecution(ctx context.Context, seqID, invoiceID, orgID uuid.UUID, nextActionAt time.Time) (Execution, error)
	GetExecution(ctx context.Context, id uuid.UUID) (Execution, error)
	ListDueExecutions(ctx context.Context, orgID uuid.UUID, now time.Time, limit int) ([]Execution, error)
	ListExecutions(ctx context.Context, orgID uuid.UUID, status *ExecutionStatus, limit int) ([]Execution, error)
	// MarkStepEnqueued records that a step's outbound item was written and
	// clears the action timer until the send result arrives.
	MarkStepEnqueued(ctx context.Context, id uuid.UUID, stepNumber int) error
	// RecordSent stores the send instant and either completes the run or
	// arms the timer for the next step.
	RecordSent(ctx context.Context, id uuid.UUID, sentAt time.Time, nextActionAt *time.Time, completed bool) error
	// StopExecution moves an active execution to stopped. Calling it on an
	// already stopped or completed record is a no-op.
	StopExecution(ctx context.Context, id uuid.UUID, reason string) error
}

// Store combines definition and execution persistence.
type Store interface {
	DefinitionReader
	ExecutionStore
}
