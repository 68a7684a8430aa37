// Package transport defines the orchestrator's request/response DTOs.
package transport

import (
	"time"

	"tahseel_backend/internal/orchestrator/repository"
	"tahseel_backend/internal/orchestrator/service"
)

// RunSummary is the rollup across every stage of one run. SuccessRate is
// the successful fraction of processed units, 1 when nothing was processed.
type RunSummary struct {
	TotalProcessed  int     `json:"totalProcessed"`
	TotalSuccessful int     `json:"totalSuccessful"`
	TotalFailed     int     `json:"totalFailed"`
	SuccessRate     float64 `json:"successRate"`
}

// TriggerDetails counts what the run initiated.
type TriggerDetails struct {
	SequencesStarted int `json:"sequencesStarted"`
	RemindersCreated int `json:"remindersCreated"`
}

// ExecutionDetails counts state-machine movement.
type ExecutionDetails struct {
	Advanced int `json:"advanced"`
	Stopped  int `json:"stopped"`
}

// EmailDetails counts queue drain results.
type EmailDetails struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Saved  int `json:"saved"`
}

// RunDetails groups the per-stage counters of one run.
type RunDetails struct {
	Triggers   TriggerDetails   `json:"triggers"`
	Executions ExecutionDetails `json:"executions"`
	Emails     EmailDetails     `json:"emails"`
}

// RunResponse is returned by the run trigger endpoint.
type RunResponse struct {
	RunID      string     `json:"runId"`
	StartedAt  time.Time  `json:"startedAt"`
	DurationMs int64      `json:"durationMs"`
	Success    bool       `json:"success"`
	Skipped    bool       `json:"skipped"`
	SkipReason string     `json:"skipReason,omitempty"`
	Summary    RunSummary `json:"summary"`
	Details    RunDetails `json:"details"`
	NextRun    *time.Time `json:"nextRun,omitempty"`
	Errors     []string   `json:"errors,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}

func ToRunResponse(rep *service.Report) RunResponse {
	return RunResponse{
		RunID:      rep.RunID.String(),
		StartedAt:  rep.StartedAt,
		DurationMs: rep.Duration.Milliseconds(),
		Success:    rep.Success,
		Skipped:    rep.Skipped,
		SkipReason: rep.SkipReason,
		Summary:    summarize(rep),
		Details: RunDetails{
			Triggers: TriggerDetails{
				SequencesStarted: rep.TriggersStarted,
				RemindersCreated: rep.RemindersCreated,
			},
			Executions: ExecutionDetails{
				Advanced: rep.ExecutionsAdvanced,
				Stopped:  rep.ExecutionsStopped,
			},
			Emails: EmailDetails{
				Sent:   rep.EmailsSent,
				Failed: rep.EmailsFailed,
				Saved:  rep.EmailsSaved,
			},
		},
		NextRun:  rep.NextRun,
		Errors:   rep.Errors,
		Warnings: rep.Warnings,
	}
}

// summarize rolls the stage counters up into the totals. Each started
// sequence, created reminder, execution movement and delivery attempt is
// one processed unit; failed deliveries are the failed units.
func summarize(rep *service.Report) RunSummary {
	processed := rep.TriggersStarted + rep.RemindersCreated +
		rep.ExecutionsAdvanced + rep.ExecutionsStopped +
		rep.EmailsSent + rep.EmailsFailed

	s := RunSummary{
		TotalProcessed:  processed,
		TotalSuccessful: processed - rep.EmailsFailed,
		TotalFailed:     rep.EmailsFailed,
		SuccessRate:     1,
	}
	if processed > 0 {
		s.SuccessRate = float64(s.TotalSuccessful) / float64(processed)
	}
	return s
}

// QueueHealthResponse summarizes outbound queue depth.
type QueueHealthResponse struct {
	Queued         int `json:"queued"`
	ScheduledToday int `json:"scheduledToday"`
	FailedLastHour int `json:"failedLastHour"`
}

// RunRecordResponse is one entry of the recent-activity list.
type RunRecordResponse struct {
	RunID      string     `json:"runId"`
	StartedAt  time.Time  `json:"startedAt"`
	DurationMs int64      `json:"durationMs"`
	Success    bool       `json:"success"`
	Skipped    bool       `json:"skipped"`
	SkipReason string     `json:"skipReason,omitempty"`
	EmailsSent int        `json:"emailsSent"`
	ErrorCount int        `json:"errorCount"`
	NextRunAt  *time.Time `json:"nextRunAt,omitempty"`
}

// ProcessingWindowResponse describes the business window in effect.
type ProcessingWindowResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ConfigurationResponse echoes the effective engine configuration.
type ConfigurationResponse struct {
	ProcessingInterval     string `json:"processingInterval"`
	DrainBatchLimit        int    `json:"drainBatchLimit"`
	MaxRetries             int    `json:"maxRetries"`
	MinContactIntervalDays int    `json:"minContactIntervalDays"`
	EscalationBandsDays    [3]int `json:"escalationBandsDays"`
}

// StatusResponse is returned by the status endpoint.
type StatusResponse struct {
	CurrentTime      time.Time                `json:"currentTime"`
	TimeZone         string                   `json:"timeZone"`
	IsBusinessHours  bool                     `json:"isBusinessHours"`
	WindowReason     string                   `json:"windowReason,omitempty"`
	NextBusinessHour time.Time                `json:"nextBusinessHour"`
	ShouldProcessNow bool                     `json:"shouldProcessNow"`
	ProcessingWindow ProcessingWindowResponse `json:"processingWindow"`
	QueueHealth      QueueHealthResponse      `json:"queueHealth"`
	RecentRuns       []RunRecordResponse      `json:"recentRuns"`
	Configuration    ConfigurationResponse    `json:"configuration"`
}

func ToStatusResponse(st service.Status) StatusResponse {
	runs := make([]RunRecordResponse, 0, len(st.RecentRuns))
	for _, r := range st.RecentRuns {
		runs = append(runs, toRunRecordResponse(r))
	}
	return StatusResponse{
		CurrentTime:      st.CurrentTime,
		TimeZone:         st.TimeZone,
		IsBusinessHours:  st.IsBusinessHours,
		WindowReason:     st.WindowReason,
		NextBusinessHour: st.NextBusinessHour,
		ShouldProcessNow: st.ShouldProcessNow,
		ProcessingWindow: ProcessingWindowResponse{Start: st.WindowStart, End: st.WindowEnd},
		QueueHealth: QueueHealthResponse{
			Queued:         st.Queue.Queued,
			ScheduledToday: st.Queue.ScheduledToday,
			FailedLastHour: st.Queue.FailedLastHour,
		},
		RecentRuns: runs,
		Configuration: ConfigurationResponse{
			ProcessingInterval:     st.Configuration.ProcessingInterval.String(),
			DrainBatchLimit:        st.Configuration.DrainBatchLimit,
			MaxRetries:             st.Configuration.MaxRetries,
			MinContactIntervalDays: st.Configuration.MinContactIntervalDays,
			EscalationBandsDays:    st.Configuration.EscalationBandsDays,
		},
	}
}

func toRunRecordResponse(r repository.RunRecord) RunRecordResponse {
	out := RunRecordResponse{
		RunID:      r.ID.String(),
		StartedAt:  r.StartedAt,
		DurationMs: r.DurationMs,
		Success:    r.Success,
		Skipped:    r.Skipped,
		EmailsSent: r.EmailsSent,
		ErrorCount: len(r.Errors),
		NextRunAt:  r.NextRunAt,
	}
	if r.SkipReason != nil {
		out.SkipReason = *r.SkipReason
	}
	return out
}

// DeliveryCallbackRequest is the delivery-status callback payload.
type DeliveryCallbackRequest struct {
	MessageID string `json:"messageId" binding:"required" validate:"required"`
	Delivered bool   `json:"delivered"`
	Detail    string `json:"detail" validate:"max=1000"`
}
