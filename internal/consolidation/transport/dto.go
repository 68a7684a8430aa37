// Package transport defines the HTTP request/response shapes for the
// consolidation module.
package transport

import (
	"time"

	"tahseel_backend/internal/consolidation/repository"
	"tahseel_backend/internal/consolidation/service"

	"github.com/google/uuid"
)

// CandidateResponse previews one customer's consolidation grouping.
type CandidateResponse struct {
	CustomerID        uuid.UUID  `json:"customer_id"`
	CustomerName      string     `json:"customer_name"`
	InvoiceCount      int        `json:"invoice_count"`
	TotalAmountCents  int64      `json:"total_amount_cents"`
	Currency          string     `json:"currency"`
	OldestDaysOverdue int        `json:"oldest_days_overdue"`
	EscalationLevel   string     `json:"escalation_level"`
	PriorityScore     int        `json:"priority_score"`
	CanContact        bool       `json:"can_contact"`
	NextEligibleAt    *time.Time `json:"next_eligible_at,omitempty"`
}

// ReminderResponse is the external view of a consolidated reminder.
type ReminderResponse struct {
	ID               uuid.UUID   `json:"id"`
	CustomerID       uuid.UUID   `json:"customer_id"`
	InvoiceIDs       []uuid.UUID `json:"invoice_ids"`
	InvoiceCount     int         `json:"invoice_count"`
	TotalAmountCents int64       `json:"total_amount_cents"`
	Currency         string      `json:"currency"`
	EscalationLevel  string      `json:"escalation_level"`
	PriorityScore    int         `json:"priority_score"`
	ScheduledFor     time.Time   `json:"scheduled_for"`
	Status           string      `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
}

// CreateReminderRequest asks for a reminder for one candidate customer.
type CreateReminderRequest struct {
	CustomerID uuid.UUID `json:"customer_id" binding:"required"`
}

// ToCandidateResponse maps a service candidate to its response shape.
func ToCandidateResponse(c service.Candidate) CandidateResponse {
	return CandidateResponse{
		CustomerID:        c.CustomerID,
		CustomerName:      c.CustomerName,
		InvoiceCount:      c.InvoiceCount,
		TotalAmountCents:  c.TotalAmountCents,
		Currency:          c.Currency,
		OldestDaysOverdue: c.OldestDaysOverdue,
		EscalationLevel:   c.EscalationLevel.String(),
		PriorityScore:     c.PriorityScore,
		CanContact:        c.CanContact,
		NextEligibleAt:    c.NextEligibleAt,
	}
}

// ToReminderResponse maps a repository reminder to its response shape.
func ToReminderResponse(r repository.Reminder) ReminderResponse {
	return ReminderResponse{
		ID:               r.ID,
		CustomerID:       r.CustomerID,
		InvoiceIDs:       r.InvoiceIDs,
		InvoiceCount:     r.InvoiceCount,
		TotalAmountCents: r.TotalAmountCents,
		Currency:         r.Currency,
		EscalationLevel:  r.EscalationLevel.String(),
		PriorityScore:    r.PriorityScore,
		ScheduledFor:     r.ScheduledFor,
		Status:           string(r.Status),
		CreatedAt:        r.CreatedAt,
	}
}
