package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tahseel_backend/internal/calendar"
	consrepo "tahseel_backend/internal/consolidation/repository"
	conssvc "tahseel_backend/internal/consolidation/service"
	"tahseel_backend/internal/email"
	"tahseel_backend/internal/invoices"
	"tahseel_backend/internal/orchestrator/repository"
	"tahseel_backend/internal/outbox"
	seqrepo "tahseel_backend/internal/sequence/repository"
	seqsvc "tahseel_backend/internal/sequence/service"
	"tahseel_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Monday 10:00 in Dubai, inside the default business window.
var businessNow = time.Date(2026, 6, 8, 6, 0, 0, 0, time.UTC)

// Friday, a non-working day under UAE defaults.
var fridayNow = time.Date(2026, 6, 12, 6, 0, 0, 0, time.UTC)

type fakeSnapshot struct {
	orgs     []invoices.Organization
	triggers map[uuid.UUID][]invoices.TriggerCandidate
	listErr  error
}

func (f *fakeSnapshot) ListOrganizations(_ context.Context) ([]invoices.Organization, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.orgs, nil
}

func (f *fakeSnapshot) FindTriggerCandidates(_ context.Context, orgID uuid.UUID, _ time.Time) ([]invoices.TriggerCandidate, error) {
	return f.triggers[orgID], nil
}

type fakeSequences struct {
	mu sync.Mutex

	startErrs   map[uuid.UUID]error // keyed by invoice id
	started     []invoices.TriggerCandidate
	due         []seqrepo.Execution
	outcomes    map[uuid.UUID]seqsvc.AdvanceOutcome
	sentExecs   []uuid.UUID
	failedExecs map[uuid.UUID]string
}

func newFakeSequences() *fakeSequences {
	return &fakeSequences{
		startErrs:   make(map[uuid.UUID]error),
		outcomes:    make(map[uuid.UUID]seqsvc.AdvanceOutcome),
		failedExecs: make(map[uuid.UUID]string),
	}
}

func (f *fakeSequences) Start(_ context.Context, _ uuid.UUID, cand invoices.TriggerCandidate, _ time.Time) (seqrepo.Execution, error) {
	if err := f.startErrs[cand.InvoiceID]; err != nil {
		return seqrepo.Execution{}, err
	}
	for _, prev := range f.started {
		if prev.InvoiceID == cand.InvoiceID && prev.SequenceID == cand.SequenceID {
			return seqrepo.Execution{}, seqrepo.ErrAlreadyActive
		}
	}
	f.started = append(f.started, cand)
	return seqrepo.Execution{ID: uuid.New(), InvoiceID: cand.InvoiceID, Status: seqrepo.StatusActive}, nil
}

func (f *fakeSequences) ListDue(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]seqrepo.Execution, error) {
	return f.due, nil
}

func (f *fakeSequences) Advance(_ context.Context, _ invoices.Organization, _ calendar.Config, execID uuid.UUID, _ time.Time) (seqsvc.AdvanceOutcome, error) {
	return f.outcomes[execID], nil
}

func (f *fakeSequences) RecordSent(_ context.Context, execID uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentExecs = append(f.sentExecs, execID)
	return nil
}

func (f *fakeSequences) RecordDeliveryFailed(_ context.Context, execID uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedExecs[execID] = reason
	return nil
}

type fakeConsolidations struct {
	mu sync.Mutex

	candidates []conssvc.Candidate
	created    []uuid.UUID
	outcomes   map[uuid.UUID]consrepo.Status
}

func newFakeConsolidations() *fakeConsolidations {
	return &fakeConsolidations{outcomes: make(map[uuid.UUID]consrepo.Status)}
}

func (f *fakeConsolidations) Candidates(_ context.Context, _ invoices.Organization, _ time.Time) ([]conssvc.Candidate, error) {
	return f.candidates, nil
}

func (f *fakeConsolidations) CreateReminder(_ context.Context, _ invoices.Organization, _ calendar.Config, customerID uuid.UUID, _ time.Time) (consrepo.Reminder, error) {
	f.created = append(f.created, customerID)
	return consrepo.Reminder{ID: uuid.New(), CustomerID: customerID, Status: consrepo.StatusScheduled}, nil
}

func (f *fakeConsolidations) RecordOutcome(_ context.Context, id uuid.UUID, status consrepo.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[id] = status
	return nil
}

type fakeOutbox struct {
	mu sync.Mutex

	due         []outbox.Item
	claims      int
	sent        map[uuid.UUID]string
	rescheduled map[uuid.UUID]time.Time
	failed      map[uuid.UUID]string
	stats       outbox.Stats
	tracked     *outbox.Item // returned by UpdateDeliveryStatus
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{
		sent:        make(map[uuid.UUID]string),
		rescheduled: make(map[uuid.UUID]time.Time),
		failed:      make(map[uuid.UUID]string),
	}
}

func (f *fakeOutbox) Enqueue(_ context.Context, _ outbox.InsertParams) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (f *fakeOutbox) ClaimDue(_ context.Context, _ int, _ time.Time) ([]outbox.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	items := f.due
	f.due = nil
	return items, nil
}

func (f *fakeOutbox) MarkSent(_ context.Context, id uuid.UUID, externalMessageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = externalMessageID
	return nil
}

func (f *fakeOutbox) RescheduleRetry(_ context.Context, id uuid.UUID, nextAt time.Time, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled[id] = nextAt
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = lastError
	return nil
}

func (f *fakeOutbox) UpdateDeliveryStatus(_ context.Context, externalMessageID string, delivered bool, detail string) (outbox.Item, error) {
	if f.tracked == nil || f.tracked.ExternalMessageID == nil || *f.tracked.ExternalMessageID != externalMessageID {
		return outbox.Item{}, pgx.ErrNoRows
	}
	item := *f.tracked
	if delivered {
		item.Status = outbox.StatusDelivered
	} else {
		item.Status = outbox.StatusFailed
		item.LastError = &detail
	}
	return item, nil
}

func (f *fakeOutbox) QueueStats(_ context.Context, _ time.Time) (outbox.Stats, error) {
	return f.stats, nil
}

type fakeSender struct {
	mu sync.Mutex

	sent    []email.Message
	failFor map[string]error // keyed by recipient
	next    int
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: make(map[string]error)}
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[msg.Recipient]; err != nil {
		return "", err
	}
	f.next++
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", f.next), nil
}

type fakeRuns struct {
	records []repository.RunRecord
}

func (f *fakeRuns) InsertRun(_ context.Context, rec repository.RunRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRuns) RecentRuns(_ context.Context, limit int) ([]repository.RunRecord, error) {
	if limit > len(f.records) {
		limit = len(f.records)
	}
	return f.records[:limit], nil
}

type fakeFollowupConfig struct{}

func (fakeFollowupConfig) GetProcessingInterval() time.Duration { return 30 * time.Minute }
func (fakeFollowupConfig) GetDefaultTimezone() string           { return "Asia/Dubai" }
func (fakeFollowupConfig) GetMinContactIntervalDays() int       { return 7 }
func (fakeFollowupConfig) GetEscalationBandsDays() [3]int       { return [3]int{15, 30, 60} }
func (fakeFollowupConfig) GetDrainBatchLimit() int              { return 100 }
func (fakeFollowupConfig) GetDrainParallelism() int             { return 5 }
func (fakeFollowupConfig) GetDeliveryTimeout() time.Duration    { return 10 * time.Second }
func (fakeFollowupConfig) GetMaxRetries() int                   { return 3 }
func (fakeFollowupConfig) GetRetryBackoffBase() time.Duration   { return 5 * time.Minute }
func (fakeFollowupConfig) GetRetryBackoffCap() time.Duration    { return 4 * time.Hour }

type fixture struct {
	svc            *Service
	snapshot       *fakeSnapshot
	sequences      *fakeSequences
	consolidations *fakeConsolidations
	queue          *fakeOutbox
	sender         *fakeSender
	runs           *fakeRuns
	org            invoices.Organization
}

func newFixture() *fixture {
	org := invoices.Organization{
		ID:               uuid.New(),
		Name:             "Falcon Trading LLC",
		CalendarSettings: calendar.DefaultSettings("Asia/Dubai"),
	}
	f := &fixture{
		snapshot:       &fakeSnapshot{orgs: []invoices.Organization{org}, triggers: make(map[uuid.UUID][]invoices.TriggerCandidate)},
		sequences:      newFakeSequences(),
		consolidations: newFakeConsolidations(),
		queue:          newFakeOutbox(),
		sender:         newFakeSender(),
		runs:           &fakeRuns{},
		org:            org,
	}
	f.svc = New(f.snapshot, f.sequences, f.consolidations, f.queue, f.sender, f.runs, nil, fakeFollowupConfig{}, logger.New("test"))
	return f
}

func queuedItem(orgID uuid.UUID, retryCount, maxRetries int) outbox.Item {
	return outbox.Item{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Recipient:      "ahmed@example.ae",
		Subject:        "Reminder INV-2026-001",
		Body:           "Payment is due.",
		Language:       "en",
		RetryCount:     retryCount,
		MaxRetries:     maxRetries,
		Status:         outbox.StatusSending,
	}
}

func TestRunSkipsOutsideBusinessWindow(t *testing.T) {
	f := newFixture()
	f.queue.due = []outbox.Item{queuedItem(f.org.ID, 0, 3)}

	rep, err := f.svc.Run(context.Background(), fridayNow)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !rep.Skipped || rep.SkipReason == "" {
		t.Fatalf("expected skipped run with reason, got skipped=%v reason=%q", rep.Skipped, rep.SkipReason)
	}
	if rep.NextRun == nil {
		t.Fatal("expected next eligible window on skipped run")
	}
	if f.queue.claims != 0 || len(f.sender.sent) != 0 {
		t.Fatalf("queue must not drain outside the window: claims=%d sent=%d", f.queue.claims, len(f.sender.sent))
	}
	if len(f.runs.records) != 1 || !f.runs.records[0].Skipped {
		t.Fatalf("expected one skipped run record, got %+v", f.runs.records)
	}
}

func TestRunCountsTriggersAndAdvancement(t *testing.T) {
	f := newFixture()

	fresh := invoices.TriggerCandidate{InvoiceID: uuid.New(), SequenceID: uuid.New(), CustomerID: uuid.New()}
	raced := invoices.TriggerCandidate{InvoiceID: uuid.New(), SequenceID: fresh.SequenceID, CustomerID: uuid.New()}
	f.snapshot.triggers[f.org.ID] = []invoices.TriggerCandidate{fresh, raced}
	f.sequences.startErrs[raced.InvoiceID] = seqrepo.ErrAlreadyActive

	advanced := seqrepo.Execution{ID: uuid.New(), Status: seqrepo.StatusActive}
	stopped := seqrepo.Execution{ID: uuid.New(), Status: seqrepo.StatusActive}
	idle := seqrepo.Execution{ID: uuid.New(), Status: seqrepo.StatusActive}
	f.sequences.due = []seqrepo.Execution{advanced, stopped, idle}
	f.sequences.outcomes[advanced.ID] = seqsvc.AdvanceEnqueued
	f.sequences.outcomes[stopped.ID] = seqsvc.AdvanceStopped
	f.sequences.outcomes[idle.ID] = seqsvc.AdvanceNoop

	rep, err := f.svc.Run(context.Background(), businessNow)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.TriggersStarted != 1 {
		t.Fatalf("expected 1 trigger started, got %d", rep.TriggersStarted)
	}
	if len(rep.Errors) != 0 {
		t.Fatalf("a lost start race is not an error, got %v", rep.Errors)
	}
	if rep.ExecutionsAdvanced != 1 || rep.ExecutionsStopped != 1 {
		t.Fatalf("expected 1 advanced and 1 stopped, got %d/%d", rep.ExecutionsAdvanced, rep.ExecutionsStopped)
	}
	if !rep.Success {
		t.Fatal("expected successful run")
	}
}

func TestRunConsolidatesMultiInvoiceCustomersOnly(t *testing.T) {
	f := newFixture()
	f.consolidations.candidates = []conssvc.Candidate{
		{CustomerID: uuid.New(), InvoiceCount: 3, CanContact: true},
		{CustomerID: uuid.New(), InvoiceCount: 1, CanContact: true},
		{CustomerID: uuid.New(), InvoiceCount: 2, CanContact: false},
	}

	rep, err := f.svc.Run(context.Background(), businessNow)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.RemindersCreated != 1 {
		t.Fatalf("expected 1 reminder, got %d", rep.RemindersCreated)
	}
	if len(f.consolidations.created) != 1 || f.consolidations.created[0] != f.consolidations.candidates[0].CustomerID {
		t.Fatalf("expected the three-invoice customer only, got %v", f.consolidations.created)
	}
	if rep.EmailsSaved != 2 {
		t.Fatalf("three invoices in one email save two, got %d", rep.EmailsSaved)
	}
}

func TestDrainDeliversAndRecordsSent(t *testing.T) {
	f := newFixture()
	execID := uuid.New()
	item := queuedItem(f.org.ID, 0, 3)
	item.ExecutionID = &execID
	f.queue.due = []outbox.Item{item}

	rep, err := f.svc.Run(context.Background(), businessNow)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.EmailsSent != 1 || rep.EmailsFailed != 0 {
		t.Fatalf("expected 1 sent and 0 failed, got %d/%d", rep.EmailsSent, rep.EmailsFailed)
	}
	if f.queue.sent[item.ID] == "" {
		t.Fatal("expected item marked sent with a message id")
	}
	if len(f.sequences.sentExecs) != 1 || f.sequences.sentExecs[0] != execID {
		t.Fatalf("expected send recorded on execution %s, got %v", execID, f.sequences.sentExecs)
	}
}

func TestDrainReschedulesWhileRetriesRemain(t *testing.T) {
	f := newFixture()
	item := queuedItem(f.org.ID, 0, 3)
	f.queue.due = []outbox.Item{item}
	f.sender.failFor[item.Recipient] = errors.New("connection refused")

	rep, err := f.svc.Run(context.Background(), businessNow)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.EmailsFailed != 0 {
		t.Fatalf("a retryable failure is not permanent, got %d failed", rep.EmailsFailed)
	}
	nextAt, ok := f.queue.rescheduled[item.ID]
	if !ok {
		t.Fatal("expected item rescheduled for retry")
	}
	if want := businessNow.Add(5 * time.Minute); !nextAt.Equal(want) {
		t.Fatalf("first retry uses the base backoff: want %v, got %v", want, nextAt)
	}
	if len(rep.Warnings) == 0 {
		t.Fatal("expected a retry warning in the report")
	}
}

func TestDrainStopsExecutionWhenRetriesExhausted(t *testing.T) {
	f := newFixture()
	execID := uuid.New()
	item := queuedItem(f.org.ID, 2, 3)
	item.ExecutionID = &execID
	f.queue.due = []outbox.Item{item}
	f.sender.failFor[item.Recipient] = errors.New("mailbox unavailable")

	rep, err := f.svc.Run(context.Background(), businessNow)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.EmailsFailed != 1 {
		t.Fatalf("expected 1 permanent failure, got %d", rep.EmailsFailed)
	}
	if _, ok := f.queue.failed[item.ID]; !ok {
		t.Fatal("expected item marked failed")
	}
	if reason := f.sequences.failedExecs[execID]; !strings.Contains(reason, "mailbox unavailable") {
		t.Fatalf("expected execution stopped with the delivery error, got %q", reason)
	}
	if !rep.Success {
		t.Fatal("per-item failures must not fail the run")
	}
}

func TestDrainContinuesPastFailedItem(t *testing.T) {
	f := newFixture()
	broken := queuedItem(f.org.ID, 2, 3)
	broken.Recipient = "bounce@example.ae"
	healthy := queuedItem(f.org.ID, 0, 3)
	f.queue.due = []outbox.Item{broken, healthy}
	f.sender.failFor[broken.Recipient] = errors.New("user unknown")

	rep, err := f.svc.Run(context.Background(), businessNow)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.EmailsSent != 1 || rep.EmailsFailed != 1 {
		t.Fatalf("expected 1 sent and 1 failed, got %d/%d", rep.EmailsSent, rep.EmailsFailed)
	}
	if f.queue.sent[healthy.ID] == "" {
		t.Fatal("healthy item must still go out")
	}
}

func TestApplyDeliveryStatusPropagatesBounce(t *testing.T) {
	f := newFixture()
	execID := uuid.New()
	msgID := "msg-42"
	item := queuedItem(f.org.ID, 0, 3)
	item.ExecutionID = &execID
	item.ExternalMessageID = &msgID
	f.queue.tracked = &item

	updated, err := f.svc.ApplyDeliveryStatus(context.Background(), msgID, false, "hard bounce")
	if err != nil {
		t.Fatalf("ApplyDeliveryStatus failed: %v", err)
	}
	if updated.Status != outbox.StatusFailed {
		t.Fatalf("expected failed status, got %s", updated.Status)
	}
	if f.sequences.failedExecs[execID] != "hard bounce" {
		t.Fatalf("expected execution stopped on bounce, got %v", f.sequences.failedExecs)
	}
}

func TestApplyDeliveryStatusMarksReminderDelivered(t *testing.T) {
	f := newFixture()
	reminderID := uuid.New()
	msgID := "msg-7"
	item := queuedItem(f.org.ID, 0, 3)
	item.ReminderID = &reminderID
	item.ExternalMessageID = &msgID
	f.queue.tracked = &item

	if _, err := f.svc.ApplyDeliveryStatus(context.Background(), msgID, true, ""); err != nil {
		t.Fatalf("ApplyDeliveryStatus failed: %v", err)
	}
	if f.consolidations.outcomes[reminderID] != consrepo.StatusDelivered {
		t.Fatalf("expected reminder delivered, got %v", f.consolidations.outcomes)
	}
}

func TestApplyDeliveryStatusUnknownMessage(t *testing.T) {
	f := newFixture()

	if _, err := f.svc.ApplyDeliveryStatus(context.Background(), "no-such-id", true, ""); err == nil {
		t.Fatal("expected error for unknown message id")
	}
}

func TestStatusReportsWindowAndQueue(t *testing.T) {
	f := newFixture()
	f.queue.stats = outbox.Stats{Queued: 4, ScheduledToday: 2, FailedLastHour: 1}
	f.runs.records = []repository.RunRecord{{ID: uuid.New(), StartedAt: businessNow, Success: true}}

	st, err := f.svc.Status(context.Background(), fridayNow)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.IsBusinessHours {
		t.Fatal("Friday is not a working day under UAE defaults")
	}
	if st.WindowReason != calendar.ReasonNonWorkingDay {
		t.Fatalf("expected non-working-day reason, got %q", st.WindowReason)
	}
	// Next window opens Sunday 08:00 Dubai time.
	wantNext := time.Date(2026, 6, 14, 8, 0, 0, 0, st.NextBusinessHour.Location())
	if !st.NextBusinessHour.Equal(wantNext) {
		t.Fatalf("expected next window %v, got %v", wantNext, st.NextBusinessHour)
	}
	if st.Queue.Queued != 4 || st.Queue.FailedLastHour != 1 {
		t.Fatalf("unexpected queue stats: %+v", st.Queue)
	}
	if st.ShouldProcessNow {
		t.Fatal("queued work outside the window must not suggest processing")
	}
	if len(st.RecentRuns) != 1 {
		t.Fatalf("expected 1 recent run, got %d", len(st.RecentRuns))
	}
	if st.Configuration.ProcessingInterval != 30*time.Minute || st.Configuration.MaxRetries != 3 {
		t.Fatalf("unexpected configuration echo: %+v", st.Configuration)
	}
}

func TestRunFailsWhenSnapshotUnavailable(t *testing.T) {
	f := newFixture()
	f.snapshot.listErr = errors.New("connection reset")

	rep, err := f.svc.Run(context.Background(), businessNow)
	if err == nil {
		t.Fatal("expected a fatal error when organizations cannot be listed")
	}
	if rep == nil || len(rep.Errors) == 0 {
		t.Fatal("the partial report must carry the failure")
	}
	if rep.Success {
		t.Fatal("a run that could not start is not successful")
	}
}

func TestRunTwiceStartsEachPairOnce(t *testing.T) {
	f := newFixture()
	cand := invoices.TriggerCandidate{InvoiceID: uuid.New(), SequenceID: uuid.New(), CustomerID: uuid.New()}
	f.snapshot.triggers[f.org.ID] = []invoices.TriggerCandidate{cand}

	first, err := f.svc.Run(context.Background(), businessNow)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	second, err := f.svc.Run(context.Background(), businessNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if first.TriggersStarted != 1 || second.TriggersStarted != 0 {
		t.Fatalf("expected start counts 1 then 0, got %d then %d", first.TriggersStarted, second.TriggersStarted)
	}
	if len(f.sequences.started) != 1 {
		t.Fatalf("expected exactly one execution started, got %d", len(f.sequences.started))
	}
	if len(second.Errors) != 0 {
		t.Fatalf("overlapping invocation must not report errors, got %v", second.Errors)
	}
}

func TestRetryThenSucceedAcrossRuns(t *testing.T) {
	f := newFixture()
	item := queuedItem(f.org.ID, 0, 3)
	f.queue.due = []outbox.Item{item}
	f.sender.failFor[item.Recipient] = errors.New("greylisted")

	if _, err := f.svc.Run(context.Background(), businessNow); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if _, ok := f.queue.rescheduled[item.ID]; !ok {
		t.Fatal("expected item rescheduled after first failure")
	}

	// Delivery recovers; the rescheduled item comes back in a later claim
	// with the bumped retry counter.
	delete(f.sender.failFor, item.Recipient)
	item.RetryCount = 1
	f.queue.due = []outbox.Item{item}

	rep, err := f.svc.Run(context.Background(), businessNow.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if rep.EmailsSent != 1 {
		t.Fatalf("expected the retried item to go out, got %d sent", rep.EmailsSent)
	}
	if f.queue.sent[item.ID] == "" {
		t.Fatal("expected item marked sent on the retry")
	}
}

func TestRunRecordsHealthWarnings(t *testing.T) {
	f := newFixture()
	f.queue.stats = outbox.Stats{Queued: 800, FailedLastHour: 3}

	rep, err := f.svc.Run(context.Background(), businessNow)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var backlog, failures bool
	for _, w := range rep.Warnings {
		if strings.Contains(w, "backlog") {
			backlog = true
		}
		if strings.Contains(w, "failed in the last hour") {
			failures = true
		}
	}
	if !backlog || !failures {
		t.Fatalf("expected backlog and failure warnings, got %v", rep.Warnings)
	}
}
