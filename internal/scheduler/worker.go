package scheduler

import (
	"context"
	"fmt"
	"time"

	"tahseel_backend/internal/orchestrator/service"
	"tahseel_backend/platform/config"
	"tahseel_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *service.Service
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner *service.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		runner: runner,
		log:    log,
	}

	mux.HandleFunc(TaskFollowupRun, w.handleFollowupRun)

	return w, nil
}

func (w *Worker) handleFollowupRun(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowupRunPayload(task)
	if err != nil {
		return err
	}

	rep, err := w.runner.Run(ctx, time.Now().UTC())
	if err != nil {
		// A returned error means the cycle could not run; let asynq retry.
		return err
	}

	w.log.Info("scheduled follow-up run finished",
		"run_id", rep.RunID,
		"source", payload.Source,
		"skipped", rep.Skipped,
		"sent", rep.EmailsSent,
		"errors", len(rep.Errors),
	)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
