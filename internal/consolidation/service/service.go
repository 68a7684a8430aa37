// Package service implements the consolidation engine: grouping a
// customer's overdue invoices into a single prioritized reminder under the
// minimum contact interval.
package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"tahseel_backend/internal/calendar"
	"tahseel_backend/internal/consolidation/repository"
	"tahseel_backend/internal/email"
	"tahseel_backend/internal/escalation"
	"tahseel_backend/internal/events"
	"tahseel_backend/internal/invoices"
	"tahseel_backend/internal/outbox"
	"tahseel_backend/platform/apperr"
	"tahseel_backend/platform/config"
	"tahseel_backend/platform/logger"

	"github.com/google/uuid"
)

// ErrNotEligible is returned when the customer was contacted too recently.
// Candidates go stale between preview and creation; callers treat this as
// an expected outcome, not a failure.
var ErrNotEligible = apperr.Conflict("customer was contacted too recently for another consolidated reminder")

// Priority scoring weights and normalization caps. The score blends how
// much is outstanding, how old the oldest debt is, and how many invoices
// are open, each normalized to [0, 1].
const (
	weightAmount = 0.5
	weightAge    = 0.3
	weightCount  = 0.2

	amountCapCents = 10_000_000 // AED 100,000
	ageCapDays     = 90
	countCap       = 10
)

// Candidate is a customer eligible for (or throttled from) a consolidated
// reminder, with everything needed to rank and preview it.
type Candidate struct {
	CustomerID        uuid.UUID
	CustomerName      string
	Email             string
	Language          string
	Invoices          []invoices.Invoice
	InvoiceCount      int
	TotalAmountCents  int64
	Currency          string
	OldestDaysOverdue int
	EscalationLevel   escalation.Level
	PriorityScore     int
	CanContact        bool
	NextEligibleAt    *time.Time
}

// InvoiceReader is the snapshot surface the engine needs.
type InvoiceReader interface {
	ListOverdue(ctx context.Context, orgID uuid.UUID, now time.Time) ([]invoices.OverdueInvoice, error)
}

// Queue accepts outbound items for later delivery.
type Queue interface {
	Enqueue(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
}

// Service is the consolidation engine.
type Service struct {
	repo        repository.Store
	invoices    InvoiceReader
	queue       Queue
	bus         events.Bus
	log         *logger.Logger
	maxRetries  int
	minInterval int // days, fallback when the org has none configured
}

func New(repo repository.Store, inv InvoiceReader, queue Queue, bus events.Bus, cfg config.FollowupConfig, log *logger.Logger) *Service {
	return &Service{
		repo:        repo,
		invoices:    inv,
		queue:       queue,
		bus:         bus,
		log:         log,
		maxRetries:  cfg.GetMaxRetries(),
		minInterval: cfg.GetMinContactIntervalDays(),
	}
}

// Candidates groups the organization's overdue invoices by customer and
// ranks each group. Eligibility is advisory here; CreateReminder re-checks
// it atomically.
func (s *Service) Candidates(ctx context.Context, org invoices.Organization, now time.Time) ([]Candidate, error) {
	overdue, err := s.invoices.ListOverdue(ctx, org.ID, now)
	if err != nil {
		return nil, err
	}

	interval := s.contactInterval(org)
	byCustomer := make(map[uuid.UUID]*Candidate)
	var order []uuid.UUID

	for _, inv := range overdue {
		cand, ok := byCustomer[inv.CustomerID]
		if !ok {
			cand = &Candidate{
				CustomerID:   inv.CustomerID,
				CustomerName: inv.Customer.Name,
				Email:        inv.Customer.Email,
				Language:     inv.Customer.Language,
				Currency:     inv.Currency,
			}
			if last := inv.Customer.LastConsolidatedContactAt; last != nil {
				next := last.AddDate(0, 0, interval)
				cand.NextEligibleAt = &next
			}
			byCustomer[inv.CustomerID] = cand
			order = append(order, inv.CustomerID)
		}
		cand.Invoices = append(cand.Invoices, inv.Invoice)
		cand.TotalAmountCents += inv.AmountCents
		if d := inv.DaysOverdue(now); d > cand.OldestDaysOverdue {
			cand.OldestDaysOverdue = d
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		cand := byCustomer[id]
		cand.InvoiceCount = len(cand.Invoices)
		cand.EscalationLevel = escalation.FromDaysOverdue(cand.OldestDaysOverdue, org.EscalationBandsDays)
		cand.PriorityScore = priorityScore(cand.TotalAmountCents, cand.OldestDaysOverdue, cand.InvoiceCount)
		cand.CanContact = cand.NextEligibleAt == nil || !cand.NextEligibleAt.After(now)
		out = append(out, *cand)
	}
	return out, nil
}

// CreateReminder turns a candidate into a persisted, queued reminder. The
// contact guard is a conditional update on the customer row: of any number
// of concurrent creations for the same customer exactly one succeeds and
// the rest get ErrNotEligible.
func (s *Service) CreateReminder(ctx context.Context, org invoices.Organization, cal calendar.Config, customerID uuid.UUID, now time.Time) (repository.Reminder, error) {
	cands, err := s.Candidates(ctx, org, now)
	if err != nil {
		return repository.Reminder{}, err
	}

	var cand *Candidate
	for i := range cands {
		if cands[i].CustomerID == customerID {
			cand = &cands[i]
			break
		}
	}
	if cand == nil {
		return repository.Reminder{}, apperr.NotFound("customer has no overdue invoices")
	}
	if !cand.CanContact {
		return repository.Reminder{}, ErrNotEligible
	}

	// Render before touching any state so a broken template leaves nothing
	// behind.
	subject, body, err := renderReminder(org.Name, *cand, now)
	if err != nil {
		return repository.Reminder{}, err
	}

	interval := s.contactInterval(org)
	cutoff := now.AddDate(0, 0, -interval)
	claimed, err := s.repo.ClaimContact(ctx, customerID, now, cutoff)
	if err != nil {
		return repository.Reminder{}, err
	}
	if !claimed {
		return repository.Reminder{}, ErrNotEligible
	}

	invoiceIDs := make([]uuid.UUID, 0, len(cand.Invoices))
	for _, inv := range cand.Invoices {
		invoiceIDs = append(invoiceIDs, inv.ID)
	}

	rem := repository.Reminder{
		ID:               uuid.New(),
		OrganizationID:   org.ID,
		CustomerID:       customerID,
		InvoiceIDs:       invoiceIDs,
		InvoiceCount:     cand.InvoiceCount,
		TotalAmountCents: cand.TotalAmountCents,
		Currency:         cand.Currency,
		EscalationLevel:  cand.EscalationLevel,
		PriorityScore:    cand.PriorityScore,
		ScheduledFor:     cal.NextSendable(now),
		Status:           repository.StatusScheduled,
	}
	if err := s.repo.InsertReminder(ctx, rem); err != nil {
		return repository.Reminder{}, err
	}

	if _, err := s.queue.Enqueue(ctx, outbox.InsertParams{
		OrganizationID: org.ID,
		ReminderID:     &rem.ID,
		Recipient:      cand.Email,
		Subject:        subject,
		Body:           body,
		Language:       cand.Language,
		ScheduledFor:   rem.ScheduledFor,
		MaxRetries:     s.maxRetries,
	}); err != nil {
		return repository.Reminder{}, fmt.Errorf("failed to enqueue consolidated reminder: %w", err)
	}

	s.log.Info("reminder_created",
		"reminder_id", rem.ID.String(),
		"customer_id", customerID.String(),
		"invoice_count", rem.InvoiceCount,
		"escalation", rem.EscalationLevel.String(),
		"priority", rem.PriorityScore,
	)
	if s.bus != nil {
		s.bus.Publish(ctx, events.ReminderCreated{
			BaseEvent:    events.NewBaseEvent(),
			ReminderID:   rem.ID,
			CustomerID:   customerID,
			InvoiceCount: rem.InvoiceCount,
		})
	}
	return rem, nil
}

// Cancel cancels a scheduled reminder. Sent and delivered reminders are
// immutable.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.repo.CancelReminder(ctx, id)
}

// List returns recent reminders for an organization.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, limit int) ([]repository.Reminder, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListReminders(ctx, orgID, limit)
}

// RecordOutcome updates a reminder after its outbound item's delivery
// result arrives.
func (s *Service) RecordOutcome(ctx context.Context, id uuid.UUID, status repository.Status) error {
	return s.repo.UpdateStatus(ctx, id, status)
}

// EmailsSaved is the consolidation metric: for each acted candidate, one
// email replaced InvoiceCount individual ones.
func EmailsSaved(acted []Candidate) int {
	saved := 0
	for _, c := range acted {
		if c.InvoiceCount > 1 {
			saved += c.InvoiceCount - 1
		}
	}
	return saved
}

func (s *Service) contactInterval(org invoices.Organization) int {
	if org.MinContactIntervalDays > 0 {
		return org.MinContactIntervalDays
	}
	return s.minInterval
}

func priorityScore(totalCents int64, oldestDays, count int) int {
	amount := math.Min(float64(totalCents)/float64(amountCapCents), 1)
	age := math.Min(float64(oldestDays)/float64(ageCapDays), 1)
	num := math.Min(float64(count)/float64(countCap), 1)
	return int(math.Round(100 * (weightAmount*amount + weightAge*age + weightCount*num)))
}

func renderReminder(orgName string, cand Candidate, now time.Time) (string, string, error) {
	lines := make([]email.InvoiceLine, 0, len(cand.Invoices))
	for _, inv := range cand.Invoices {
		lines = append(lines, email.InvoiceLine{
			Number:          inv.Number,
			AmountFormatted: email.FormatAmount(inv.AmountCents, inv.Currency),
			DueDate:         email.FormatDate(inv.DueDate),
			DaysOverdue:     inv.DaysOverdue(now),
		})
	}

	subject := email.ConsolidatedSubject(cand.EscalationLevel.String(), cand.Language, cand.InvoiceCount)
	body, err := email.RenderConsolidated(cand.Language, email.ConsolidatedData{
		CustomerName:     cand.CustomerName,
		OrganizationName: orgName,
		Invoices:         lines,
		TotalFormatted:   email.FormatAmount(cand.TotalAmountCents, cand.Currency),
		InvoiceCount:     cand.InvoiceCount,
	})
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}
