package scheduler

import (
	"context"
	"time"

	"tahseel_backend/platform/config"
	"tahseel_backend/platform/logger"
)

// Dispatcher enqueues one follow-up run task per processing interval. The
// worker side does the window check, so firing outside business hours just
// produces a skipped run.
type Dispatcher struct {
	client   *Client
	interval time.Duration
	log      *logger.Logger
}

func NewDispatcher(client *Client, cfg config.FollowupConfig, log *logger.Logger) *Dispatcher {
	interval := cfg.GetProcessingInterval()
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Dispatcher{client: client, interval: interval, log: log}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		payload := FollowupRunPayload{RequestedAt: time.Now().UTC(), Source: "ticker"}
		if err := d.client.EnqueueFollowupRun(ctx, payload); err != nil {
			d.log.Warn("failed to enqueue follow-up run", "error", err)
		}
	}
}
