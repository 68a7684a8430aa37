// Package outbox is the durable queue of pending communications. Items are
// written by the sequence and consolidation engines and drained by the
// orchestrator; the external delivery collaborator does the transport.
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Status of an outbound item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// staleClaim is how long an item may sit in "sending" before it is
// considered abandoned by a killed run and becomes claimable again.
const staleClaim = 10 * time.Minute

// Item is one queued unit of outbound work.
type Item struct {
	ID                uuid.UUID
	OrganizationID    uuid.UUID
	ExecutionID       *uuid.UUID
	ReminderID        *uuid.UUID
	Recipient         string
	Subject           string
	Body              string
	Language          string
	ScheduledFor      time.Time
	RetryCount        int
	MaxRetries        int
	Status            Status
	ExternalMessageID *string
	LastError         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// InsertParams carries the fields needed to enqueue an item.
type InsertParams struct {
	OrganizationID uuid.UUID
	ExecutionID    *uuid.UUID
	ReminderID     *uuid.UUID
	Recipient      string
	Subject        string
	Body           string
	Language       string
	ScheduledFor   time.Time
	MaxRetries     int
}

// Backoff returns the delay before the next delivery retry. Exponential,
// doubling per attempt, capped.
func Backoff(retryCount int, base, cap time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
