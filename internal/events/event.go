// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"tahseel_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Follow-up Domain Events
// =============================================================================

// ExecutionStopped is published when a sequence execution terminates before
// completing, whether by stop condition or manual request.
type ExecutionStopped struct {
	BaseEvent
	ExecutionID uuid.UUID `json:"executionId"`
	InvoiceID   uuid.UUID `json:"invoiceId"`
	Reason      string    `json:"reason"`
}

func (e ExecutionStopped) EventName() string { return "followups.execution.stopped" }

// ReminderCreated is published when a consolidated reminder is persisted
// and queued.
type ReminderCreated struct {
	BaseEvent
	ReminderID   uuid.UUID `json:"reminderId"`
	CustomerID   uuid.UUID `json:"customerId"`
	InvoiceCount int       `json:"invoiceCount"`
}

func (e ReminderCreated) EventName() string { return "followups.reminder.created" }

// DeliveryStatusChanged is published when a delivery-status callback moves
// an outbound item to delivered or failed.
type DeliveryStatusChanged struct {
	BaseEvent
	ItemID            uuid.UUID  `json:"itemId"`
	ExternalMessageID string     `json:"externalMessageId"`
	ExecutionID       *uuid.UUID `json:"executionId,omitempty"`
	ReminderID        *uuid.UUID `json:"reminderId,omitempty"`
	Delivered         bool       `json:"delivered"`
	Detail            string     `json:"detail,omitempty"`
}

func (e DeliveryStatusChanged) EventName() string { return "followups.delivery.status_changed" }

// RunCompleted is published after an orchestrator run finishes, whether
// fully or partially.
type RunCompleted struct {
	BaseEvent
	RunID       string        `json:"runId"`
	Success     bool          `json:"success"`
	Skipped     bool          `json:"skipped"`
	EmailsSent  int           `json:"emailsSent"`
	ErrorCount  int           `json:"errorCount"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completedAt"`
}

func (e RunCompleted) EventName() string { return "followups.run.completed" }
