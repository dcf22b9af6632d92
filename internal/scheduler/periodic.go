package scheduler

import (
	"context"
	"fmt"
	"time"

	"claims_backend/platform/config"
	"claims_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// PeriodicConfig is what the cron registrations need.
type PeriodicConfig interface {
	config.SchedulerConfig
	GetIdempotencyCleanupSpec() string
	GetStuckClaimScanSpec() string
}

// Periodic enqueues the cron-style maintenance tasks. Every replica may run
// one; the job bodies take a lease so a tick executes once.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg PeriodicConfig, log *logger.Logger) (*Periodic, error) {
	opt, err := asynqRedisOpt(cfg)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	queue := asynq.Queue(queueName(cfg))

	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{cfg.GetIdempotencyCleanupSpec(), NewIdempotencyCleanupTask()},
		{cfg.GetStuckClaimScanSpec(), NewStuckClaimScanTask()},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, e.task, queue); err != nil {
			return nil, fmt.Errorf("register %s (%s): %w", e.task.Type(), e.spec, err)
		}
		log.Info("periodic task registered", "task", e.task.Type(), "spec", e.spec)
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler failed to start", "error", err)
		return
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
}
