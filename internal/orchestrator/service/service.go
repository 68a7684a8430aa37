// Package service runs the follow-up cycle: trigger detection, sequence
// advancement, consolidation, and the outbound queue drain, then records a
// run report. One invocation is one cycle; overlapping invocations are safe
// because every stage relies on database-level guards.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tahseel_backend/internal/calendar"
	consrepo "tahseel_backend/internal/consolidation/repository"
	conssvc "tahseel_backend/internal/consolidation/service"
	"tahseel_backend/internal/email"
	"tahseel_backend/internal/events"
	"tahseel_backend/internal/invoices"
	"tahseel_backend/internal/orchestrator/repository"
	"tahseel_backend/internal/outbox"
	seqrepo "tahseel_backend/internal/sequence/repository"
	seqsvc "tahseel_backend/internal/sequence/service"
	"tahseel_backend/platform/apperr"
	"tahseel_backend/platform/config"
	"tahseel_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

// dueBatchLimit caps how many due executions one cycle advances per
// organization. Leftovers are picked up by the next cycle.
const dueBatchLimit = 200

// queueDepthWarn is the pending-item count above which the run report
// carries a backlog warning.
const queueDepthWarn = 500

// Snapshot lists organizations and scans for newly eligible invoices.
type Snapshot interface {
	ListOrganizations(ctx context.Context) ([]invoices.Organization, error)
	FindTriggerCandidates(ctx context.Context, orgID uuid.UUID, now time.Time) ([]invoices.TriggerCandidate, error)
}

// Sequences is the slice of the sequence engine the orchestrator drives.
type Sequences interface {
	Start(ctx context.Context, orgID uuid.UUID, cand invoices.TriggerCandidate, now time.Time) (seqrepo.Execution, error)
	ListDue(ctx context.Context, orgID uuid.UUID, now time.Time, limit int) ([]seqrepo.Execution, error)
	Advance(ctx context.Context, org invoices.Organization, cal calendar.Config, execID uuid.UUID, now time.Time) (seqsvc.AdvanceOutcome, error)
	RecordSent(ctx context.Context, execID uuid.UUID, sentAt time.Time) error
	RecordDeliveryFailed(ctx context.Context, execID uuid.UUID, reason string) error
}

// Consolidations is the slice of the consolidation engine the orchestrator
// drives.
type Consolidations interface {
	Candidates(ctx context.Context, org invoices.Organization, now time.Time) ([]conssvc.Candidate, error)
	CreateReminder(ctx context.Context, org invoices.Organization, cal calendar.Config, customerID uuid.UUID, now time.Time) (consrepo.Reminder, error)
	RecordOutcome(ctx context.Context, id uuid.UUID, status consrepo.Status) error
}

// Report is the outcome of one Run invocation.
type Report struct {
	RunID              uuid.UUID
	StartedAt          time.Time
	Duration           time.Duration
	Success            bool
	Skipped            bool
	SkipReason         string
	TriggersStarted    int
	ExecutionsAdvanced int
	ExecutionsStopped  int
	RemindersCreated   int
	EmailsSent         int
	EmailsFailed       int
	EmailsSaved        int
	Errors             []string
	Warnings           []string
	NextRun            *time.Time
}

// Status is the point-in-time view served by the status endpoint.
type Status struct {
	CurrentTime      time.Time
	TimeZone         string
	IsBusinessHours  bool
	WindowReason     string
	NextBusinessHour time.Time
	ShouldProcessNow bool
	WindowStart      string
	WindowEnd        string
	Queue            outbox.Stats
	RecentRuns       []repository.RunRecord
	Configuration    ConfigView
}

// ConfigView is the effective engine configuration echoed by the status
// endpoint.
type ConfigView struct {
	ProcessingInterval     time.Duration
	DrainBatchLimit        int
	MaxRetries             int
	MinContactIntervalDays int
	EscalationBandsDays    [3]int
}

// Service coordinates one follow-up cycle across all organizations.
type Service struct {
	snapshot       Snapshot
	sequences      Sequences
	consolidations Consolidations
	queue          outbox.Store
	sender         email.Sender
	runs           repository.Store
	bus            events.Bus
	cfg            config.FollowupConfig
	log            *logger.Logger
}

func New(
	snapshot Snapshot,
	sequences Sequences,
	consolidations Consolidations,
	queue outbox.Store,
	sender email.Sender,
	runs repository.Store,
	bus events.Bus,
	cfg config.FollowupConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		snapshot:       snapshot,
		sequences:      sequences,
		consolidations: consolidations,
		queue:          queue,
		sender:         sender,
		runs:           runs,
		bus:            bus,
		cfg:            cfg,
		log:            log,
	}
}

// Run executes one follow-up cycle at the given instant. Per-item failures
// are collected in the report and do not abort the cycle; the returned error
// is non-nil only when the cycle could not run at all.
func (s *Service) Run(ctx context.Context, now time.Time) (*Report, error) {
	started := time.Now()
	rep := &Report{RunID: uuid.New(), StartedAt: now}

	s.log.Info("follow-up run started", "run_id", rep.RunID)

	orgs, err := s.snapshot.ListOrganizations(ctx)
	if err != nil {
		rep.Duration = time.Since(started)
		rep.Errors = append(rep.Errors, fmt.Sprintf("failed to list organizations: %v", err))
		s.finish(ctx, rep)
		return rep, fmt.Errorf("failed to list organizations: %w", err)
	}

	var earliestWindow *time.Time
	processed := 0
	for _, org := range orgs {
		cal, err := org.CalendarSettings.Build()
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("organization %s: %v", org.ID, err))
			continue
		}

		if verdict := cal.IsSendable(now); !verdict.Valid {
			next := cal.NextSendable(now)
			if earliestWindow == nil || next.Before(*earliestWindow) {
				earliestWindow = &next
			}
			rep.Warnings = append(rep.Warnings, fmt.Sprintf(
				"organization %s skipped: %s, next window %s",
				org.ID, verdict.Reason, next.Format(time.RFC3339)))
			continue
		}

		processed++
		s.processOrganization(ctx, rep, org, cal, now)
	}

	// Nothing to do when every organization is outside its window: the queue
	// drain is also withheld, since everything in it was scheduled inside a
	// window and the next eligible instant is known.
	if processed == 0 && len(orgs) > 0 {
		rep.Skipped = true
		rep.SkipReason = "outside processing window for every organization"
		rep.Success = true
		rep.NextRun = earliestWindow
		rep.Duration = time.Since(started)
		s.finish(ctx, rep)
		return rep, nil
	}

	s.drainQueue(ctx, rep, now)
	s.checkQueueHealth(ctx, rep, now)

	rep.Success = true
	rep.NextRun = s.nextRunAt(now)
	rep.Duration = time.Since(started)
	s.finish(ctx, rep)

	s.log.Info("follow-up run completed",
		"run_id", rep.RunID,
		"triggers", rep.TriggersStarted,
		"advanced", rep.ExecutionsAdvanced,
		"stopped", rep.ExecutionsStopped,
		"reminders", rep.RemindersCreated,
		"sent", rep.EmailsSent,
		"failed", rep.EmailsFailed,
		"errors", len(rep.Errors),
		"duration_ms", rep.Duration.Milliseconds(),
	)
	return rep, nil
}

// processOrganization runs trigger detection, advancement, and consolidation
// for one organization inside its business window.
func (s *Service) processOrganization(ctx context.Context, rep *Report, org invoices.Organization, cal calendar.Config, now time.Time) {
	cands, err := s.snapshot.FindTriggerCandidates(ctx, org.ID, now)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("organization %s: trigger scan: %v", org.ID, err))
	} else {
		for _, tc := range cands {
			if _, err := s.sequences.Start(ctx, org.ID, tc, now); err != nil {
				// A concurrent run already started this pair.
				if errors.Is(err, seqrepo.ErrAlreadyActive) {
					continue
				}
				rep.Errors = append(rep.Errors, fmt.Sprintf("invoice %s: start sequence: %v", tc.InvoiceID, err))
				continue
			}
			rep.TriggersStarted++
		}
	}

	due, err := s.sequences.ListDue(ctx, org.ID, now, dueBatchLimit)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("organization %s: list due executions: %v", org.ID, err))
	} else {
		for _, exec := range due {
			outcome, err := s.sequences.Advance(ctx, org, cal, exec.ID, now)
			if err != nil {
				rep.Errors = append(rep.Errors, fmt.Sprintf("execution %s: advance: %v", exec.ID, err))
				continue
			}
			switch outcome {
			case seqsvc.AdvanceEnqueued:
				rep.ExecutionsAdvanced++
			case seqsvc.AdvanceStopped:
				rep.ExecutionsStopped++
			}
		}
	}

	// The automatic pass consolidates only customers holding two or more
	// overdue invoices; single-invoice customers are already covered by their
	// per-invoice sequences. The manual endpoint has no such floor.
	candidates, err := s.consolidations.Candidates(ctx, org, now)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("organization %s: consolidation scan: %v", org.ID, err))
		return
	}
	var acted []conssvc.Candidate
	for _, c := range candidates {
		if c.InvoiceCount < 2 || !c.CanContact {
			continue
		}
		if _, err := s.consolidations.CreateReminder(ctx, org, cal, c.CustomerID, now); err != nil {
			if errors.Is(err, conssvc.ErrNotEligible) {
				continue
			}
			rep.Errors = append(rep.Errors, fmt.Sprintf("customer %s: create reminder: %v", c.CustomerID, err))
			continue
		}
		rep.RemindersCreated++
		acted = append(acted, c)
	}
	rep.EmailsSaved += conssvc.EmailsSaved(acted)
}

// drainQueue claims due outbound items and delivers them with bounded
// parallelism. Per-item failures are retried or recorded; they never abort
// the drain.
func (s *Service) drainQueue(ctx context.Context, rep *Report, now time.Time) {
	items, err := s.queue.ClaimDue(ctx, s.cfg.GetDrainBatchLimit(), now)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("failed to claim due items: %v", err))
		return
	}
	if len(items) == 0 {
		return
	}

	parallelism := s.cfg.GetDrainParallelism()
	if parallelism < 1 {
		parallelism = 5
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, item := range items {
		item := item
		g.Go(func() error {
			s.deliver(gctx, rep, &mu, item, now)
			return nil
		})
	}
	_ = g.Wait()
}

// deliver sends one claimed item and propagates the outcome to the execution
// or reminder the item belongs to.
func (s *Service) deliver(ctx context.Context, rep *Report, mu *sync.Mutex, item outbox.Item, now time.Time) {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.GetDeliveryTimeout())
	defer cancel()

	messageID, err := s.sender.Send(sendCtx, email.Message{
		Recipient: item.Recipient,
		Subject:   item.Subject,
		Body:      item.Body,
		Language:  item.Language,
	})
	if err != nil {
		s.deliverFailed(ctx, rep, mu, item, now, err)
		return
	}

	if err := s.queue.MarkSent(ctx, item.ID, messageID); err != nil {
		mu.Lock()
		rep.Errors = append(rep.Errors, fmt.Sprintf("item %s: mark sent: %v", item.ID, err))
		mu.Unlock()
		return
	}

	if item.ExecutionID != nil {
		if err := s.sequences.RecordSent(ctx, *item.ExecutionID, now); err != nil {
			mu.Lock()
			rep.Errors = append(rep.Errors, fmt.Sprintf("execution %s: record sent: %v", *item.ExecutionID, err))
			mu.Unlock()
		}
	}
	if item.ReminderID != nil {
		if err := s.consolidations.RecordOutcome(ctx, *item.ReminderID, consrepo.StatusSent); err != nil {
			mu.Lock()
			rep.Errors = append(rep.Errors, fmt.Sprintf("reminder %s: record sent: %v", *item.ReminderID, err))
			mu.Unlock()
		}
	}

	mu.Lock()
	rep.EmailsSent++
	mu.Unlock()

	s.log.Info("outbound item sent", "item_id", item.ID, "message_id", messageID)
}

// deliverFailed reschedules the item with exponential backoff while retries
// remain, otherwise marks it permanently failed and stops the work that
// produced it.
func (s *Service) deliverFailed(ctx context.Context, rep *Report, mu *sync.Mutex, item outbox.Item, now time.Time, sendErr error) {
	attempt := item.RetryCount + 1
	if attempt < item.MaxRetries {
		delay := outbox.Backoff(item.RetryCount, s.cfg.GetRetryBackoffBase(), s.cfg.GetRetryBackoffCap())
		if err := s.queue.RescheduleRetry(ctx, item.ID, now.Add(delay), sendErr.Error()); err != nil {
			mu.Lock()
			rep.Errors = append(rep.Errors, fmt.Sprintf("item %s: reschedule retry: %v", item.ID, err))
			mu.Unlock()
			return
		}
		mu.Lock()
		rep.Warnings = append(rep.Warnings, fmt.Sprintf(
			"item %s: delivery attempt %d failed, retrying in %s: %v", item.ID, attempt, delay, sendErr))
		mu.Unlock()
		return
	}

	if err := s.queue.MarkFailed(ctx, item.ID, sendErr.Error()); err != nil {
		mu.Lock()
		rep.Errors = append(rep.Errors, fmt.Sprintf("item %s: mark failed: %v", item.ID, err))
		mu.Unlock()
		return
	}

	mu.Lock()
	rep.EmailsFailed++
	rep.Errors = append(rep.Errors, fmt.Sprintf(
		"item %s: delivery failed after %d attempts: %v", item.ID, attempt, sendErr))
	mu.Unlock()

	if item.ExecutionID != nil {
		if err := s.sequences.RecordDeliveryFailed(ctx, *item.ExecutionID, sendErr.Error()); err != nil {
			mu.Lock()
			rep.Errors = append(rep.Errors, fmt.Sprintf("execution %s: record failure: %v", *item.ExecutionID, err))
			mu.Unlock()
		}
	}
	if item.ReminderID != nil {
		if err := s.consolidations.RecordOutcome(ctx, *item.ReminderID, consrepo.StatusFailed); err != nil {
			mu.Lock()
			rep.Errors = append(rep.Errors, fmt.Sprintf("reminder %s: record failure: %v", *item.ReminderID, err))
			mu.Unlock()
		}
	}
}

func (s *Service) checkQueueHealth(ctx context.Context, rep *Report, now time.Time) {
	stats, err := s.queue.QueueStats(ctx, now)
	if err != nil {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("queue stats unavailable: %v", err))
		return
	}
	if stats.Queued > queueDepthWarn {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("queue backlog high: %d items pending", stats.Queued))
	}
	if stats.FailedLastHour > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d deliveries failed in the last hour", stats.FailedLastHour))
	}
}

// nextRunAt projects the next cycle under the deployment-default calendar.
func (s *Service) nextRunAt(now time.Time) *time.Time {
	cal, err := calendar.DefaultSettings(s.cfg.GetDefaultTimezone()).Build()
	if err != nil {
		return nil
	}
	next := cal.NextSendable(now.Add(s.cfg.GetProcessingInterval()))
	return &next
}

// finish persists the run record and publishes the completion event. Neither
// failure mode changes the run outcome; persistence problems become warnings.
func (s *Service) finish(ctx context.Context, rep *Report) {
	rec := repository.RunRecord{
		ID:                 rep.RunID,
		StartedAt:          rep.StartedAt,
		DurationMs:         rep.Duration.Milliseconds(),
		Success:            rep.Success,
		Skipped:            rep.Skipped,
		TriggersStarted:    rep.TriggersStarted,
		ExecutionsAdvanced: rep.ExecutionsAdvanced,
		ExecutionsStopped:  rep.ExecutionsStopped,
		RemindersCreated:   rep.RemindersCreated,
		EmailsSent:         rep.EmailsSent,
		EmailsFailed:       rep.EmailsFailed,
		EmailsSaved:        rep.EmailsSaved,
		Errors:             rep.Errors,
		Warnings:           rep.Warnings,
		NextRunAt:          rep.NextRun,
	}
	if rep.SkipReason != "" {
		rec.SkipReason = &rep.SkipReason
	}
	if err := s.runs.InsertRun(ctx, rec); err != nil {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("run record not persisted: %v", err))
		s.log.Error("failed to persist run record", "run_id", rep.RunID, "error", err)
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.RunCompleted{
			BaseEvent:   events.NewBaseEvent(),
			RunID:       rep.RunID.String(),
			Success:     rep.Success,
			Skipped:     rep.Skipped,
			EmailsSent:  rep.EmailsSent,
			ErrorCount:  len(rep.Errors),
			Duration:    rep.Duration,
			CompletedAt: rep.StartedAt.Add(rep.Duration),
		})
	}
}

// ApplyDeliveryStatus applies a delivery-status callback from the transport
// collaborator and propagates it to the execution or reminder behind the
// item.
func (s *Service) ApplyDeliveryStatus(ctx context.Context, externalMessageID string, delivered bool, detail string) (outbox.Item, error) {
	item, err := s.queue.UpdateDeliveryStatus(ctx, externalMessageID, delivered, detail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return outbox.Item{}, apperr.NotFound("no outbound item for that message id")
		}
		return outbox.Item{}, fmt.Errorf("failed to update delivery status: %w", err)
	}

	if delivered {
		if item.ReminderID != nil {
			if err := s.consolidations.RecordOutcome(ctx, *item.ReminderID, consrepo.StatusDelivered); err != nil {
				s.log.Error("failed to record reminder delivery", "reminder_id", *item.ReminderID, "error", err)
			}
		}
	} else {
		if item.ExecutionID != nil {
			if err := s.sequences.RecordDeliveryFailed(ctx, *item.ExecutionID, detail); err != nil {
				s.log.Error("failed to stop execution on delivery failure", "execution_id", *item.ExecutionID, "error", err)
			}
		}
		if item.ReminderID != nil {
			if err := s.consolidations.RecordOutcome(ctx, *item.ReminderID, consrepo.StatusFailed); err != nil {
				s.log.Error("failed to record reminder failure", "reminder_id", *item.ReminderID, "error", err)
			}
		}
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.DeliveryStatusChanged{
			BaseEvent:         events.NewBaseEvent(),
			ItemID:            item.ID,
			ExternalMessageID: externalMessageID,
			ExecutionID:       item.ExecutionID,
			ReminderID:        item.ReminderID,
			Delivered:         delivered,
			Detail:            detail,
		})
	}
	return item, nil
}

// Status reports whether the engine would process right now and summarizes
// queue depth and recent runs.
func (s *Service) Status(ctx context.Context, now time.Time) (Status, error) {
	settings := calendar.DefaultSettings(s.cfg.GetDefaultTimezone())
	cal, err := settings.Build()
	if err != nil {
		return Status{}, fmt.Errorf("default calendar: %w", err)
	}

	verdict := cal.IsSendable(now)
	st := Status{
		CurrentTime:      now.In(cal.Location),
		TimeZone:         settings.Timezone,
		IsBusinessHours:  verdict.Valid,
		WindowReason:     verdict.Reason,
		NextBusinessHour: cal.NextSendable(now),
		WindowStart:      cal.WindowStartClock(),
		WindowEnd:        cal.WindowEndClock(),
	}

	stats, err := s.queue.QueueStats(ctx, now)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	st.Queue = stats
	st.ShouldProcessNow = verdict.Valid && stats.Queued > 0

	runs, err := s.runs.RecentRuns(ctx, 10)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read recent runs: %w", err)
	}
	st.RecentRuns = runs

	st.Configuration = ConfigView{
		ProcessingInterval:     s.cfg.GetProcessingInterval(),
		DrainBatchLimit:        s.cfg.GetDrainBatchLimit(),
		MaxRetries:             s.cfg.GetMaxRetries(),
		MinContactIntervalDays: s.cfg.GetMinContactIntervalDays(),
		EscalationBandsDays:    s.cfg.GetEscalationBandsDays(),
	}
	return st, nil
}
