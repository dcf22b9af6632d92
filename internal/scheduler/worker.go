package scheduler

import (
	"context"
	"fmt"

	"claims_backend/internal/aitasks"
	"claims_backend/platform/config"
	"claims_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor aitasks.Processor
	jobs      *Jobs
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor aitasks.Processor, jobs *Jobs, log *logger.Logger) (*Worker, error) {
	opt, err := asynqRedisOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: processor,
		jobs:      jobs,
		log:       log,
	}
	w.register()
	return w, nil
}

func (w *Worker) register() {
	w.mux.HandleFunc(TaskAITaskRun, w.handleAITaskRun)
	w.mux.HandleFunc(TaskIdempotencyCleanup, w.handleIdempotencyCleanup)
	w.mux.HandleFunc(TaskStuckClaimScan, w.handleStuckClaimScan)
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

func (w *Worker) handleAITaskRun(ctx context.Context, task *asynq.Task) error {
	taskID, err := ParseAITaskRunPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return w.processor.Process(ctx, taskID)
}

func (w *Worker) handleIdempotencyCleanup(ctx context.Context, _ *asynq.Task) error {
	_, err := w.jobs.CleanupIdempotency(ctx)
	return err
}

func (w *Worker) handleStuckClaimScan(ctx context.Context, _ *asynq.Task) error {
	_, err := w.jobs.ScanStuckClaims(ctx)
	return err
}
