// Package invoices provides read-only access to the invoice/customer
// snapshot consumed by the follow-up engine. Invoice lifecycle (creation,
// payment capture, disputes) is owned by an external subsystem; the engine
// only reads current state and never mutates it.
package invoices

import (
	"time"

	"tahseel_backend/internal/calendar"

	"github.com/google/uuid"
)

// Invoice payment status values as written by the external billing system.
const (
	StatusUnpaid   = "unpaid"
	StatusPaid     = "paid"
	StatusDisputed = "disputed"
	StatusDeleted  = "deleted"
)

// Organization carries the per-organization follow-up configuration along
// with identity fields. Calendar settings and escalation thresholds are
// data, not code: Islamic holiday dates shift yearly and day-threshold
// cutoffs vary between organizations.
type Organization struct {
	ID                     uuid.UUID
	Name                   string
	CalendarSettings       calendar.Settings
	MinContactIntervalDays int
	// EscalationBandsDays holds the upper bounds (exclusive) of the gentle,
	// firm and urgent bands in days past due; anything above the last bound
	// is final.
	EscalationBandsDays [3]int
	CreatedAt           time.Time
}

// Customer is the debtor contact snapshot.
type Customer struct {
	ID                        uuid.UUID
	OrganizationID            uuid.UUID
	Name                      string
	Email                     string
	Language                  string // "en" or "ar"
	LastConsolidatedContactAt *time.Time
}

// Invoice is a single receivable as seen by the engine.
type Invoice struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	CustomerID     uuid.UUID
	Number         string
	AmountCents    int64
	Currency       string
	DueDate        time.Time
	Status         string
	CreatedAt      time.Time
}

// DaysOverdue returns whole days past the due date at the given instant,
// zero when the invoice is not yet due.
func (i Invoice) DaysOverdue(now time.Time) int {
	if !now.After(i.DueDate) {
		return 0
	}
	return int(now.Sub(i.DueDate).Hours() / 24)
}

// OverdueInvoice pairs an invoice with its customer for consolidation.
type OverdueInvoice struct {
	Invoice
	Customer Customer
}

// TriggerCandidate is an invoice newly eligible for a sequence: overdue,
// unpaid, and without an active execution for that sequence.
type TriggerCandidate struct {
	InvoiceID  uuid.UUID
	SequenceID uuid.UUID
	CustomerID uuid.UUID
}
