package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"claims_backend/internal/adapters/storage"
	"claims_backend/internal/aitasks"
	"claims_backend/internal/aitasks/analyzers"
	claimsrepo "claims_backend/internal/claims/repository"
	"claims_backend/internal/events"
	"claims_backend/internal/idempotency"
	"claims_backend/internal/notification"
	"claims_backend/internal/scheduler"
	"claims_backend/platform/clock"
	"claims_backend/platform/config"
	"claims_backend/platform/db"
	"claims_backend/platform/logger"
	"claims_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if !cfg.IsSchedulerEnabled() {
		log.Error("REDIS_URL not configured; the scheduler has nothing to consume")
		panic("scheduler requires REDIS_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg, "claims-scheduler")
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	// Events raised by AI tasks (processed, dead-lettered) notify from here.
	// In-app rows are persisted; live SSE clients are attached to the API.
	notificationModule := notification.New(pool, claimsrepo.New(pool), validator.New(), log)
	notificationModule.RegisterHandlers(eventBus)

	storageSvc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize asynq client", "error", err)
		panic("failed to initialize asynq client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	queue := aitasks.NewQueue(aitasks.NewRepository(pool), client, eventBus, clock.Real{}, log)
	if err := analyzers.RegisterAll(ctx, queue, storageSvc, cfg, log); err != nil {
		log.Error("failed to initialize ai analyzers", "error", err)
		panic("failed to initialize ai analyzers: " + err.Error())
	}

	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	hostname, _ := os.Hostname()
	ledger := idempotency.NewLedger(idempotency.NewRepository(pool), cfg.GetIdempotencyTTL(), clock.Real{}, log)
	jobs := scheduler.NewJobs(ledger, queue, scheduler.NewLease(redisClient, hostname), cfg.GetAISLOWindow(), log)

	worker, err := scheduler.NewWorker(cfg, queue, jobs, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		periodic.Run(gctx)
		return nil
	})
	_ = g.Wait()
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
