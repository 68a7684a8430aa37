package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"tahseel_backend/internal/calendar"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "invoices repository not configured"

// Reader is the read-only snapshot interface consumed by the engine.
type Reader interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (Organization, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error)
	ListOverdue(ctx context.Context, orgID uuid.UUID, now time.Time) ([]OverdueInvoice, error)
	FindTriggerCandidates(ctx context.Context, orgID uuid.UUID, now time.Time) ([]TriggerCandidate, error)
}

// Repository reads the invoice/customer snapshot from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a snapshot repository backed by the given pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOrganizations returns every organization with its follow-up settings.
func (r *Repository) ListOrganizations(ctx context.Context) ([]Organization, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, name, calendar_settings, min_contact_interval_days,
		        escalation_gentle_max_days, escalation_firm_max_days, escalation_urgent_max_days,
		        created_at
		 FROM organizations
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, org)
	}
	return results, rows.Err()
}

// GetOrganization returns one organization by ID.
func (r *Repository) GetOrganization(ctx context.Context, id uuid.UUID) (Organization, error) {
	if r == nil || r.pool == nil {
		return Organization{}, errors.New(errRepoNotConfigured)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, name, calendar_settings, min_contact_interval_days,
		        escalation_gentle_max_days, escalation_firm_max_days, escalation_urgent_max_days,
		        created_at
		 FROM organizations
		 WHERE id = $1`, id)
	if err != nil {
		return Organization{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Organization{}, err
		}
		return Organization{}, pgx.ErrNoRows
	}
	return scanOrganization(rows)
}

// GetInvoice returns current invoice state, used for stop-condition checks.
func (r *Repository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	if r == nil || r.pool == nil {
		return Invoice{}, errors.New(errRepoNotConfigured)
	}

	var inv Invoice
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, customer_id, number, amount_cents, currency, due_date, status, created_at
		 FROM invoices
		 WHERE id = $1`, id,
	).Scan(&inv.ID, &inv.OrganizationID, &inv.CustomerID, &inv.Number, &inv.AmountCents,
		&inv.Currency, &inv.DueDate, &inv.Status, &inv.CreatedAt)
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// GetCustomer returns the contact snapshot for one customer.
func (r *Repository) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	if r == nil || r.pool == nil {
		return Customer{}, errors.New(errRepoNotConfigured)
	}

	var c Customer
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, email, language, last_consolidated_contact_at
		 FROM customers
		 WHERE id = $1`, id,
	).Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Email, &c.Language, &c.LastConsolidatedContactAt)
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

// ListOverdue returns all overdue, unpaid invoices for the organization
// joined with their customers, oldest due date first.
func (r *Repository) ListOverdue(ctx context.Context, orgID uuid.UUID, now time.Time) ([]OverdueInvoice, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT i.id, i.organization_id, i.customer_id, i.number, i.amount_cents, i.currency,
		        i.due_date, i.status, i.created_at,
		        c.id, c.organization_id, c.name, c.email, c.language, c.last_consolidated_contact_at
		 FROM invoices i
		 JOIN customers c ON c.id = i.customer_id
		 WHERE i.organization_id = $1
		   AND i.status = $2
		   AND i.due_date < $3
		 ORDER BY i.due_date ASC`,
		orgID, StatusUnpaid, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []OverdueInvoice
	for rows.Next() {
		var o OverdueInvoice
		if err := rows.Scan(
			&o.ID, &o.OrganizationID, &o.CustomerID, &o.Number, &o.AmountCents, &o.Currency,
			&o.DueDate, &o.Status, &o.CreatedAt,
			&o.Customer.ID, &o.Customer.OrganizationID, &o.Customer.Name, &o.Customer.Email,
			&o.Customer.Language, &o.Customer.LastConsolidatedContactAt,
		); err != nil {
			return nil, err
		}
		results = append(results, o)
	}
	return results, rows.Err()
}

// FindTriggerCandidates returns (invoice, sequence) pairs that just became
// eligible: the invoice is overdue and unpaid, the sequence is active for
// the organization, and no active execution exists for the pair. The
// NOT EXISTS filter makes trigger detection idempotent across overlapping
// invocations; the unique index on executions is the hard guarantee.
func (r *Repository) FindTriggerCandidates(ctx context.Context, orgID uuid.UUID, now time.Time) ([]TriggerCandidate, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT i.id, s.id, i.customer_id
		 FROM invoices i
		 CROSS JOIN sequence_definitions s
		 WHERE i.organization_id = $1
		   AND s.organization_id = $1
		   AND s.is_active
		   AND i.status = $2
		   AND i.due_date < $3
		   AND NOT EXISTS (
		       SELECT 1 FROM sequence_executions e
		       WHERE e.sequence_id = s.id
		         AND e.invoice_id = i.id
		   )
		 ORDER BY i.due_date ASC`,
		orgID, StatusUnpaid, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TriggerCandidate
	for rows.Next() {
		var tc TriggerCandidate
		if err := rows.Scan(&tc.InvoiceID, &tc.SequenceID, &tc.CustomerID); err != nil {
			return nil, err
		}
		results = append(results, tc)
	}
	return results, rows.Err()
}

func scanOrganization(rows pgx.Rows) (Organization, error) {
	var org Organization
	var rawSettings []byte
	if err := rows.Scan(
		&org.ID, &org.Name, &rawSettings, &org.MinContactIntervalDays,
		&org.EscalationBandsDays[0], &org.EscalationBandsDays[1], &org.EscalationBandsDays[2],
		&org.CreatedAt,
	); err != nil {
		return Organization{}, err
	}

	settings, err := decodeCalendarSettings(rawSettings)
	if err != nil {
		return Organization{}, fmt.Errorf("organization %s calendar settings: %w", org.ID, err)
	}
	org.CalendarSettings = settings
	return org, nil
}

// decodeCalendarSettings parses the stored settings blob. Organizations
// that never configured a calendar get the full defaults; a configured
// calendar with a blank timezone keeps its own working days and windows
// and only the timezone falls back.
func decodeCalendarSettings(raw []byte) (calendar.Settings, error) {
	var s calendar.Settings
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s); err != nil {
			return calendar.Settings{}, err
		}
	}
	if reflect.DeepEqual(s, calendar.Settings{}) {
		return calendar.DefaultSettings(""), nil
	}
	if s.Timezone == "" {
		s.Timezone = "Asia/Dubai"
	}
	return s, nil
}
