// Package service implements claim intake, the admin review gate and the
// insurer decision engine.
package service

import (
	"context"
	"strings"
	"sync/atomic"

	"claims_backend/internal/adapters/storage"
	"claims_backend/internal/aitasks"
	"claims_backend/internal/audit"
	"claims_backend/internal/authz"
	"claims_backend/internal/claims/domain"
	"claims_backend/internal/claims/repository"
	"claims_backend/internal/events"
	"claims_backend/internal/idempotency"
	"claims_backend/internal/policies"
	"claims_backend/platform/apperr"
	"claims_backend/platform/clock"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Ledger is the idempotency surface intake needs.
type Ledger interface {
	Check(ctx context.Context, key string, request []byte) (*idempotency.CachedResponse, error)
	Create(ctx context.Context, key string, request []byte) error
	MarkCompletedTx(ctx context.Context, tx pgx.Tx, key string, claimID uuid.UUID, body []byte) error
	MarkFailed(ctx context.Context, key, message string) error
}

// PolicyResolver picks the insurer for a submission.
type PolicyResolver interface {
	Resolve(ctx context.Context, in policies.ResolveInput) (policies.Resolution, error)
}

// PolicyReader loads a policy for sum-insured checks.
type PolicyReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (policies.Policy, error)
}

// TaskQueue enqueues and lists AI tasks.
type TaskQueue interface {
	EnqueueAll(ctx context.Context, claimID uuid.UUID, taskTypes []aitasks.TaskType, input aitasks.Input) (aitasks.EnqueueResult, error)
	Supports(taskType aitasks.TaskType) bool
	ListClaimTasks(ctx context.Context, claimID uuid.UUID) ([]aitasks.Task, error)
}

// Deps are the collaborators of the claim service.
type Deps struct {
	Repo      repository.Repository
	Ledger    Ledger
	Resolver  PolicyResolver
	Policies  PolicyReader
	Queue     TaskQueue
	Validator storage.FileValidator
	Scanner   storage.FileScanner
	Bus       events.Bus
	Audit     audit.Sink
	Clock     clock.Clock
	Log       *logger.Logger
}

// Service is the claim application service.
type Service struct {
	repo            repository.Repository
	ledger          Ledger
	resolver        PolicyResolver
	policies        PolicyReader
	queue           TaskQueue
	files           storage.FileValidator
	scanner         storage.FileScanner
	bus             events.Bus
	audit           audit.Sink
	clock           clock.Clock
	log             *logger.Logger
	enqueueFailures atomic.Int64
}

// New creates the claim service.
func New(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Scanner == nil {
		d.Scanner = storage.UpstreamScanner{}
	}
	if d.Validator == nil {
		d.Validator = storage.PathValidator{}
	}
	if d.Audit == nil {
		d.Audit = audit.NewLogSink(d.Log)
	}
	return &Service{
		repo:     d.Repo,
		ledger:   d.Ledger,
		resolver: d.Resolver,
		policies: d.Policies,
		queue:    d.Queue,
		files:    d.Validator,
		scanner:  d.Scanner,
		bus:      d.Bus,
		audit:    d.Audit,
		clock:    d.Clock,
		log:      d.Log,
	}
}

// Actor is the authenticated caller.
type Actor struct {
	UserID    uuid.UUID
	Principal authz.Principal
}

// NewActor builds an actor from identity claims.
func NewActor(userID uuid.UUID, roles []string) Actor {
	return Actor{UserID: userID, Principal: authz.PrincipalFrom(roles)}
}

// EnqueueFailures counts AI tasks that could not be enqueued after intake.
func (s *Service) EnqueueFailures() int64 {
	return s.enqueueFailures.Load()
}

// canRead applies per-role claim visibility.
func (a Actor) canRead(c domain.Claim) bool {
	switch {
	case a.Principal.Can(authz.CapClaimReadAny):
		return true
	case a.Principal.Can(authz.CapClaimReadAssigned) && c.AssignedToID == a.UserID:
		return true
	case a.Principal.Can(authz.CapClaimReadOwn) && c.FarmerID == a.UserID:
		return true
	}
	return false
}

// loadVisible returns the claim if the actor may see it. Invisible claims
// are reported as missing.
func (s *Service) loadVisible(ctx context.Context, actor Actor, id uuid.UUID) (domain.Claim, error) {
	claim, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Claim{}, err
	}
	if !actor.canRead(claim) {
		return domain.Claim{}, apperr.NotFound("claim not found")
	}
	return claim, nil
}

// insurerGuard enforces the assignment invariant for insurer operations.
// Admins act on any claim.
func insurerGuard(actor Actor, claim domain.Claim) (repository.Guard, error) {
	if actor.Principal.IsAdmin() {
		return repository.Guard{}, nil
	}
	if claim.AssignedToID != actor.UserID {
		return repository.Guard{}, apperr.Forbidden("claim is not assigned to you")
	}
	assigned := actor.UserID
	return repository.Guard{AssignedToID: &assigned}, nil
}

func checkAllowed(action domain.Action, claim domain.Claim) error {
	if action.Allows(claim.Status, claim.VerificationStatus) {
		return nil
	}
	return apperr.Conflict("claim cannot " + humanize(action.Name) + " from " + string(claim.Status) + "/" + string(claim.VerificationStatus)).
		WithCode(apperr.CodeInvalidTransition)
}

func humanize(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func refOf(c domain.Claim) events.ClaimRef {
	return events.ClaimRef{
		ClaimID:     c.ID,
		ClaimNumber: c.ClaimNumber,
		FarmerID:    c.FarmerID,
		InsurerID:   c.AssignedToID,
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, event)
}

func (s *Service) record(ctx context.Context, actor Actor, action string, before, after domain.Claim, details map[string]any) {
	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       action,
		ResourceType: "claim",
		ResourceID:   after.ID,
		Details:      details,
		Before:       stateOf(before),
		After:        stateOf(after),
		At:           s.clock.Now(),
	})
}

func stateOf(c domain.Claim) any {
	if c.ID == uuid.Nil {
		return nil
	}
	return map[string]string{"status": string(c.Status), "verificationStatus": string(c.VerificationStatus)}
}
