package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"claims_backend/internal/aitasks"
	"claims_backend/internal/audit"
	"claims_backend/internal/claims/domain"
	"claims_backend/internal/claims/repository"
	"claims_backend/internal/events"
	"claims_backend/internal/idempotency"
	"claims_backend/internal/policies"
	"claims_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type fakeRepo struct {
	mu          sync.Mutex
	claims      map[uuid.UUID]domain.Claim
	docs        map[uuid.UUID][]domain.Document
	collisions  int
	createCalls int
	applyCalls  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{claims: map[uuid.UUID]domain.Claim{}, docs: map[uuid.UUID][]domain.Document{}}
}

func (r *fakeRepo) CreateWithDocuments(ctx context.Context, p repository.CreateParams, finalize repository.FinalizeFunc) (domain.Claim, []domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.collisions > 0 {
		r.collisions--
		return domain.Claim{}, nil, repository.ErrClaimNumberTaken
	}

	claim := domain.Claim{
		ID:                 uuid.New(),
		ClaimNumber:        p.ClaimNumber,
		FarmerID:           p.FarmerID,
		PolicyID:           p.PolicyID,
		ChosenPolicyID:     p.ChosenPolicyID,
		AssignedToID:       p.AssignedToID,
		Status:             domain.StatusPending,
		VerificationStatus: domain.VerificationPending,
		IncidentDate:       p.IncidentDate,
		IncidentType:       p.IncidentType,
		Description:        p.Description,
		ClaimedAmount:      p.ClaimedAmount,
		CropType:           p.CropType,
		AffectedArea:       p.AffectedArea,
		Location:           p.Location,
		AIValidationFlags:  []string{},
		CreatedAt:          p.Now,
		UpdatedAt:          p.Now,
	}
	docs := make([]domain.Document, 0, len(p.Documents))
	for _, d := range p.Documents {
		docs = append(docs, domain.Document{
			ID: uuid.New(), ClaimID: claim.ID, Kind: d.Kind, FilePath: d.FilePath,
			FileName: d.FileName, ContentType: d.ContentType, SizeBytes: d.SizeBytes, CreatedAt: p.Now,
		})
	}
	if finalize != nil {
		if err := finalize(ctx, nil, claim, docs); err != nil {
			return domain.Claim{}, nil, err
		}
	}
	r.claims[claim.ID] = claim
	r.docs[claim.ID] = docs
	return claim, docs, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[id]
	if !ok {
		return domain.Claim{}, apperr.NotFound("claim not found")
	}
	return c, nil
}

func (r *fakeRepo) ListDocuments(_ context.Context, claimID uuid.UUID) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[claimID], nil
}

func (r *fakeRepo) List(_ context.Context, f repository.ListFilter) ([]domain.Claim, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Claim
	for _, c := range r.claims {
		if f.FarmerID != nil && c.FarmerID != *f.FarmerID {
			continue
		}
		if f.AssignedToID != nil && c.AssignedToID != *f.AssignedToID {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (r *fakeRepo) ApplyAction(_ context.Context, id uuid.UUID, action domain.Action, guard repository.Guard, patch repository.Patch, now time.Time) (domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyCalls++

	c, ok := r.claims[id]
	conflict := apperr.Conflict("invalid transition").WithCode(apperr.CodeInvalidTransition)
	if !ok || c.DeletedAt != nil || !action.Allows(c.Status, c.VerificationStatus) {
		return domain.Claim{}, conflict
	}
	if guard.AssignedToID != nil && c.AssignedToID != *guard.AssignedToID {
		return domain.Claim{}, conflict
	}
	if guard.FarmerID != nil && c.FarmerID != *guard.FarmerID {
		return domain.Claim{}, conflict
	}
	if guard.NoPayout && c.PayoutTransactionID != nil {
		return domain.Claim{}, conflict
	}

	if action.ToStatus != "" {
		c.Status = action.ToStatus
	}
	if action.ToVerification != "" {
		c.VerificationStatus = action.ToVerification
	}
	set := func(dst **string, v *string) {
		if v != nil {
			*dst = v
		}
	}
	set(&c.AdminNotes, patch.AdminNotes)
	set(&c.InsurerReport, patch.InsurerReport)
	set(&c.RejectionReason, patch.RejectionReason)
	set(&c.PayoutStatus, patch.PayoutStatus)
	set(&c.PayoutTransactionID, patch.PayoutTransactionID)
	if patch.ApprovedAmount != nil {
		c.ApprovedAmount = patch.ApprovedAmount
	}
	if patch.PayoutAmount != nil {
		c.PayoutAmount = patch.PayoutAmount
	}
	if patch.PayoutDate != nil {
		c.PayoutDate = patch.PayoutDate
	}
	if patch.DeletedAt != nil {
		c.DeletedAt = patch.DeletedAt
	}
	if patch.DecidedBy != nil {
		c.DecidedBy, c.DecidedAt = patch.DecidedBy, patch.DecidedAt
	}
	if patch.AdminReviewedBy != nil {
		c.AdminReviewedBy, c.AdminReviewedAt = patch.AdminReviewedBy, patch.AdminReviewedAt
	}
	if o := patch.AIOverride; o != nil {
		if o.DamagePercent != nil {
			c.AIDamagePercent = o.DamagePercent
		}
		if o.RecommendedAmount != nil {
			c.AIRecommendedAmount = o.RecommendedAmount
		}
		if o.ValidationFlags != nil {
			c.AIValidationFlags = o.ValidationFlags
		}
		record := o.Record
		c.AIReport.AdminOverride = &record
	}
	c.UpdatedAt = now
	r.claims[id] = c
	return c, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claims)
}

func (r *fakeRepo) put(c domain.Claim) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims[c.ID] = c
}

type ledgerEntry struct {
	status  idempotency.Status
	hash    string
	claimID uuid.UUID
	body    []byte
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[string]*ledgerEntry{}}
}

func (l *fakeLedger) Check(_ context.Context, key string, request []byte) (*idempotency.CachedResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok || e.status != idempotency.StatusCompleted {
		return nil, nil
	}
	if e.hash != idempotency.RequestHash(request) {
		return nil, apperr.Conflict("reused").WithCode(apperr.CodeIdempotencyKeyReused)
	}
	return &idempotency.CachedResponse{ClaimID: e.claimID, Body: e.body}, nil
}

func (l *fakeLedger) Create(_ context.Context, key string, request []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok && e.status != idempotency.StatusFailed {
		return apperr.Conflict("in flight").WithCode(apperr.CodeIdempotencyInFlight)
	}
	l.entries[key] = &ledgerEntry{status: idempotency.StatusPending, hash: idempotency.RequestHash(request)}
	return nil
}

func (l *fakeLedger) MarkCompletedTx(_ context.Context, _ pgx.Tx, key string, claimID uuid.UUID, body []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[key]
	e.status, e.claimID, e.body = idempotency.StatusCompleted, claimID, body
	return nil
}

func (l *fakeLedger) MarkFailed(_ context.Context, key, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok {
		e.status = idempotency.StatusFailed
	}
	return nil
}

func (l *fakeLedger) status(key string) idempotency.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok {
		return e.status
	}
	return ""
}

type fakeResolver struct {
	resolution policies.Resolution
	err        error
}

func (f *fakeResolver) Resolve(context.Context, policies.ResolveInput) (policies.Resolution, error) {
	return f.resolution, f.err
}

type fakePolicies map[uuid.UUID]policies.Policy

func (f fakePolicies) GetByID(_ context.Context, id uuid.UUID) (policies.Policy, error) {
	p, ok := f[id]
	if !ok {
		return policies.Policy{}, apperr.NotFound("policy not found").WithCode(apperr.CodePolicyNotFound)
	}
	return p, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []aitasks.TaskType
	failOn   map[aitasks.TaskType]bool
	inputs   []aitasks.Input
	batches  int
}

// EnqueueAll stores the whole batch; types in failOn fail to dispatch.
func (q *fakeQueue) EnqueueAll(_ context.Context, _ uuid.UUID, types []aitasks.TaskType, in aitasks.Input) (aitasks.EnqueueResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.batches++
	var res aitasks.EnqueueResult
	var errs []error
	for _, t := range types {
		res.TaskIDs = append(res.TaskIDs, uuid.New())
		if q.failOn[t] {
			errs = append(errs, errors.New("redis unavailable"))
			continue
		}
		q.enqueued = append(q.enqueued, t)
		q.inputs = append(q.inputs, in)
		res.Dispatched++
	}
	return res, errors.Join(errs...)
}

func (q *fakeQueue) Supports(aitasks.TaskType) bool { return true }

func (q *fakeQueue) ListClaimTasks(context.Context, uuid.UUID) ([]aitasks.Task, error) {
	return nil, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) last() events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	return b.events[len(b.events)-1]
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Record(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}
