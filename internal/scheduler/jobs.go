package scheduler

import (
	"context"
	"log/slog"
	"time"

	"claims_backend/internal/aitasks"
	"claims_backend/platform/logger"
)

const (
	stuckClaimScanLimit = 100
	cleanupLeaseTTL     = 50 * time.Minute
	stuckScanLeaseTTL   = 4 * time.Minute

	// stalledTaskTimeout is the visibility timeout of an AI task attempt.
	// Analyzer calls are bounded well below it.
	stalledTaskTimeout = 10 * time.Minute
)

// LedgerCleaner removes expired idempotency records.
type LedgerCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// StuckClaimFinder lists claims whose AI tasks have not converged and
// rescues the tasks no worker is going to finish.
type StuckClaimFinder interface {
	RecoverStalled(ctx context.Context, timeout time.Duration, limit int) (int, error)
	ListStuckClaims(ctx context.Context, olderThan time.Duration, limit int) ([]aitasks.StuckClaim, error)
}

// Locker hands a periodic job to one replica at a time.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// Jobs holds the bodies of the periodic tasks.
type Jobs struct {
	ledger    LedgerCleaner
	claims    StuckClaimFinder
	locker    Locker
	sloWindow time.Duration
	log       *logger.Logger
}

func NewJobs(ledger LedgerCleaner, claims StuckClaimFinder, locker Locker, sloWindow time.Duration, log *logger.Logger) *Jobs {
	return &Jobs{ledger: ledger, claims: claims, locker: locker, sloWindow: sloWindow, log: log}
}

// CleanupIdempotency deletes expired ledger records. It returns the number
// removed, or -1 when another replica holds the lease.
func (j *Jobs) CleanupIdempotency(ctx context.Context) (int64, error) {
	held, err := j.acquire(ctx, TaskIdempotencyCleanup, cleanupLeaseTTL)
	if err != nil || !held {
		return -1, err
	}

	removed, err := j.ledger.CleanupExpired(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		j.log.Info("idempotency records expired", "removed", removed)
	}
	return removed, nil
}

// ScanStuckClaims first hands stalled AI tasks back to the retry ladder,
// then raises an slo_breach alert for claims whose AI pipeline is older than
// the SLO window. Claims themselves are never touched.
func (j *Jobs) ScanStuckClaims(ctx context.Context) ([]aitasks.StuckClaim, error) {
	held, err := j.acquire(ctx, TaskStuckClaimScan, stuckScanLeaseTTL)
	if err != nil || !held {
		return nil, err
	}

	recovered, err := j.claims.RecoverStalled(ctx, stalledTaskTimeout, stuckClaimScanLimit)
	if err != nil {
		j.log.Error("stalled ai task recovery failed", "error", err)
	} else if recovered > 0 {
		j.log.Info("stalled ai tasks recovered", "recovered", recovered)
	}

	stuck, err := j.claims.ListStuckClaims(ctx, j.sloWindow, stuckClaimScanLimit)
	if err != nil {
		return nil, err
	}
	if len(stuck) == 0 {
		return nil, nil
	}

	pending := 0
	claimNumbers := make([]string, 0, len(stuck))
	for _, c := range stuck {
		pending += c.Total - c.Completed - c.Failed
		claimNumbers = append(claimNumbers, c.ClaimNumber)
	}
	j.log.Alert("slo_breach",
		slog.Int("stuck_claims", len(stuck)),
		slog.Int("pending_tasks", pending),
		slog.Duration("slo_window", j.sloWindow),
		slog.Time("oldest_created_at", stuck[0].CreatedAt),
		slog.Any("claim_numbers", claimNumbers),
	)
	return stuck, nil
}

func (j *Jobs) acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if j.locker == nil {
		return true, nil
	}
	held, err := j.locker.Acquire(ctx, name, ttl)
	if err != nil {
		return false, err
	}
	if !held {
		j.log.Debug("periodic job skipped, lease held elsewhere", "job", name)
	}
	return held, nil
}
