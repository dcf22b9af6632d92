package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"claims_backend/internal/adapters/storage"
	"claims_backend/internal/aitasks"
	"claims_backend/internal/aitasks/analyzers"
	aitaskshandler "claims_backend/internal/aitasks/handler"
	"claims_backend/internal/claims"
	claimsrepo "claims_backend/internal/claims/repository"
	claimsservice "claims_backend/internal/claims/service"
	"claims_backend/internal/events"
	apphttp "claims_backend/internal/http"
	"claims_backend/internal/http/router"
	"claims_backend/internal/idempotency"
	"claims_backend/internal/notification"
	"claims_backend/internal/policies"
	"claims_backend/internal/scheduler"
	"claims_backend/platform/clock"
	"claims_backend/platform/config"
	"claims_backend/platform/db"
	"claims_backend/platform/httpkit"
	"claims_backend/platform/logger"
	"claims_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg, "claims-api")
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
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Claim files live in MinIO; uploads happen before intake
	storageSvc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}
	if err := withRetry(ctx, log, "ensure claim-files bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinioBucketClaimFiles())
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
	log.Info("storage service initialized", "claimFilesBucket", cfg.GetMinioBucketClaimFiles())

	// ========================================================================
	// Claim Pipeline (Composition Root)
	// ========================================================================

	ledger := idempotency.NewLedger(idempotency.NewRepository(pool), cfg.GetIdempotencyTTL(), clock.Real{}, log)
	policyRepo := policies.NewRepository(pool)
	resolver := policies.NewResolver(policyRepo, log)

	queue := aitasks.NewQueue(aitasks.NewRepository(pool), nil, eventBus, clock.Real{}, log)
	if err := analyzers.RegisterAll(ctx, queue, storageSvc, cfg, log); err != nil {
		log.Error("failed to initialize ai analyzers", "error", err)
		panic("failed to initialize ai analyzers: " + err.Error())
	}
	if closeDispatcher := initDispatcher(cfg, queue, log); closeDispatcher != nil {
		defer closeDispatcher()
	}

	claimRepo := claimsrepo.New(pool)
	claimService := claimsservice.New(claimsservice.Deps{
		Repo:      claimRepo,
		Ledger:    ledger,
		Resolver:  resolver,
		Policies:  policyRepo,
		Queue:     queue,
		Validator: storageSvc,
		Bus:       eventBus,
		Log:       log,
	})

	// Notification module subscribes to claim events and serves the inbox
	notificationModule := notification.New(pool, claimRepo, val, log)
	notificationModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:            cfg,
		Logger:            log,
		Health:            pool,
		EventBus:          eventBus,
		SubmissionLimiter: httpkit.NewSubmissionRateLimiter(log),
		Modules: []apphttp.Module{
			claims.NewModule(claimService, val),
			aitaskshandler.NewModule(queue, val),
			notificationModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		notificationModule.SSE().Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initDispatcher hands AI task attempts to asynq when Redis is configured,
// otherwise runs them in-process on timers.
func initDispatcher(cfg config.SchedulerConfig, queue *aitasks.Queue, log *logger.Logger) func() {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; AI tasks run in-process and periodic jobs are disabled")
		local := aitasks.NewLocalDispatcher(clock.Real{}, log)
		local.Bind(queue)
		queue.SetDispatcher(local)
		return nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize asynq client", "error", err)
		panic("failed to initialize asynq client: " + err.Error())
	}
	queue.SetDispatcher(client)

	return func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
