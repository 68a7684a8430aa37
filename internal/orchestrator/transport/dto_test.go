package transport

import (
	"testing"
	"time"

	"tahseel_backend/internal/orchestrator/service"

	"github.com/google/uuid"
)

func TestToRunResponseRollsUpStageCounters(t *testing.T) {
	rep := &service.Report{
		RunID:              uuid.New(),
		StartedAt:          time.Date(2026, 6, 8, 6, 0, 0, 0, time.UTC),
		Duration:           1500 * time.Millisecond,
		Success:            true,
		TriggersStarted:    2,
		ExecutionsAdvanced: 3,
		ExecutionsStopped:  1,
		RemindersCreated:   1,
		EmailsSent:         6,
		EmailsFailed:       2,
		EmailsSaved:        2,
	}

	resp := ToRunResponse(rep)

	if resp.Summary.TotalProcessed != 15 {
		t.Fatalf("total processed = %d", resp.Summary.TotalProcessed)
	}
	if resp.Summary.TotalSuccessful != 13 || resp.Summary.TotalFailed != 2 {
		t.Fatalf("successful/failed = %d/%d", resp.Summary.TotalSuccessful, resp.Summary.TotalFailed)
	}
	want := 13.0 / 15.0
	if diff := resp.Summary.SuccessRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("success rate = %v, want %v", resp.Summary.SuccessRate, want)
	}

	if resp.Details.Triggers.SequencesStarted != 2 || resp.Details.Triggers.RemindersCreated != 1 {
		t.Fatalf("trigger details = %+v", resp.Details.Triggers)
	}
	if resp.Details.Executions.Advanced != 3 || resp.Details.Executions.Stopped != 1 {
		t.Fatalf("execution details = %+v", resp.Details.Executions)
	}
	if resp.Details.Emails.Sent != 6 || resp.Details.Emails.Failed != 2 || resp.Details.Emails.Saved != 2 {
		t.Fatalf("email details = %+v", resp.Details.Emails)
	}
	if resp.DurationMs != 1500 {
		t.Fatalf("duration = %d", resp.DurationMs)
	}
}

func TestToRunResponseEmptyRunHasFullSuccessRate(t *testing.T) {
	rep := &service.Report{RunID: uuid.New(), Skipped: true, SkipReason: "outside processing window for every organization"}

	resp := ToRunResponse(rep)
	if resp.Summary.TotalProcessed != 0 {
		t.Fatalf("total processed = %d", resp.Summary.TotalProcessed)
	}
	if resp.Summary.SuccessRate != 1 {
		t.Fatalf("success rate = %v", resp.Summary.SuccessRate)
	}
	if !resp.Skipped || resp.SkipReason == "" {
		t.Fatalf("skip not carried: %+v", resp)
	}
}
