// Package transport defines the HTTP request/response shapes for the
// sequence module.
package transport

import (
	"time"

	"tahseel_backend/internal/sequence/repository"

	"github.com/google/uuid"
)

// StepResponse is one escalation step in a definition response.
type StepResponse struct {
	Number          int      `json:"number"`
	DelayDays       int      `json:"delay_days"`
	EscalationLevel string   `json:"escalation_level"`
	Language        string   `json:"language"`
	StopConditions  []string `json:"stop_conditions,omitempty"`
}

// DefinitionResponse is a sequence definition with its steps.
type DefinitionResponse struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	IsActive  bool           `json:"is_active"`
	Steps     []StepResponse `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
}

// ExecutionResponse is the external view of one execution record.
type ExecutionResponse struct {
	ID                uuid.UUID  `json:"id"`
	SequenceID        uuid.UUID  `json:"sequence_id"`
	InvoiceID         uuid.UUID  `json:"invoice_id"`
	CurrentStepNumber int        `json:"current_step_number"`
	Status            string     `json:"status"`
	LastSentAt        *time.Time `json:"last_sent_at,omitempty"`
	NextActionAt      *time.Time `json:"next_action_at,omitempty"`
	StopReason        *string    `json:"stop_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// StopExecutionRequest asks for a manual stop of an active execution.
type StopExecutionRequest struct {
	Reason string `json:"reason" binding:"required" validate:"required,min=3,max=500"`
}

// ToDefinitionResponse maps a repository definition to its response shape.
func ToDefinitionResponse(d repository.Definition) DefinitionResponse {
	steps := make([]StepResponse, 0, len(d.Steps))
	for _, s := range d.Steps {
		steps = append(steps, StepResponse{
			Number:          s.Number,
			DelayDays:       s.DelayDays,
			EscalationLevel: s.EscalationLevel.String(),
			Language:        s.Language,
			StopConditions:  s.StopConditions,
		})
	}
	return DefinitionResponse{
		ID:        d.ID,
		Name:      d.Name,
		IsActive:  d.IsActive,
		Steps:     steps,
		CreatedAt: d.CreatedAt,
	}
}

// ToExecutionResponse maps a repository execution to its response shape.
func ToExecutionResponse(e repository.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:                e.ID,
		SequenceID:        e.SequenceID,
		InvoiceID:         e.InvoiceID,
		CurrentStepNumber: e.CurrentStepNumber,
		Status:            string(e.Status),
		LastSentAt:        e.LastSentAt,
		NextActionAt:      e.NextActionAt,
		StopReason:        e.StopReason,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}
