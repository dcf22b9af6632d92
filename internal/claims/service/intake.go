package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"claims_backend/internal/adapters/storage"
	"claims_backend/internal/aitasks"
	"claims_backend/internal/claims/domain"
	"claims_backend/internal/claims/repository"
	"claims_backend/internal/claims/transport"
	"claims_backend/internal/events"
	"claims_backend/internal/idempotency"
	"claims_backend/internal/policies"
	"claims_backend/platform/apperr"
	"claims_backend/platform/sanitize"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// claimNumberAttempts bounds draws of a fresh claim number after collisions.
const claimNumberAttempts = 3

// CreateClaimInput is one submission.
type CreateClaimInput struct {
	FarmerID       uuid.UUID
	IdempotencyKey string
	Request        transport.CreateClaimRequest
}

// CreateClaimResult carries the serialized response. Replayed responses are
// byte-identical to the first one.
type CreateClaimResult struct {
	ClaimID  uuid.UUID
	Body     []byte
	Replayed bool
}

// intakeOutcome is a committed claim together with what intake learned on
// the way.
type intakeOutcome struct {
	claim      domain.Claim
	docs       []domain.Document
	resolution policies.Resolution
	body       []byte
}

// CreateClaim runs intake: idempotency, policy resolution, file checks, one
// transaction for the claim, its documents and the ledger, then AI tasks.
// The idempotency key is optional; without one every submission creates a
// claim.
func (s *Service) CreateClaim(ctx context.Context, in CreateClaimInput) (CreateClaimResult, error) {
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		cached, err := s.reserveKey(ctx, key, in.Request)
		if err != nil {
			return CreateClaimResult{}, err
		}
		if cached != nil {
			s.log.WithContext(ctx).Info("idempotent replay", "claim_id", cached.ClaimID)
			return CreateClaimResult{ClaimID: cached.ClaimID, Body: cached.Body, Replayed: true}, nil
		}
	}

	out, err := s.createClaim(ctx, key, in)
	if err != nil {
		if key != "" {
			if markErr := s.ledger.MarkFailed(ctx, key, err.Error()); markErr != nil {
				s.log.WithContext(ctx).Error("failed to release idempotency key", "error", markErr)
			}
		}
		return CreateClaimResult{}, err
	}
	claim := out.claim

	enqueued := s.enqueueAITasks(ctx, claim, out.docs, out.resolution)

	s.publish(ctx, events.ClaimCreated{
		BaseEvent:     events.NewBaseEvent(),
		ClaimRef:      refOf(claim),
		PolicyID:      claim.PolicyID,
		ClaimedAmount: claim.ClaimedAmount,
		AITasks:       enqueued,
	})
	s.record(ctx, Actor{UserID: in.FarmerID}, "claim.create", domain.Claim{}, claim, map[string]any{
		"claimId":        claim.ClaimNumber,
		"chosenPolicyId": claim.ChosenPolicyID.String(),
		"aiTasks":        enqueued,
	})

	return CreateClaimResult{ClaimID: claim.ID, Body: out.body}, nil
}

// reserveKey returns the cached response for a completed key, or records the
// key as in progress.
func (s *Service) reserveKey(ctx context.Context, key string, req transport.CreateClaimRequest) (*idempotency.CachedResponse, error) {
	if err := idempotency.ValidateKey(key); err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal claim request: %w", err)
	}

	cached, err := s.ledger.Check(ctx, key, snapshot)
	if err != nil || cached != nil {
		return cached, err
	}
	return nil, s.ledger.Create(ctx, key, snapshot)
}

func (s *Service) createClaim(ctx context.Context, key string, in CreateClaimInput) (intakeOutcome, error) {
	req := in.Request
	now := s.clock.Now()

	incidentDate, err := time.Parse("2006-01-02", req.IncidentDate)
	if err != nil {
		return intakeOutcome{}, apperr.Validation("incidentDate must be YYYY-MM-DD").WithCode(apperr.CodeValidationFailed)
	}
	if incidentDate.After(now) {
		return intakeOutcome{}, apperr.Validation("incidentDate cannot be in the future").WithCode(apperr.CodeValidationFailed)
	}

	resolution, err := s.resolver.Resolve(ctx, policies.ResolveInput{
		FarmerID:       in.FarmerID,
		PolicyRef:      req.PolicyID,
		IncidentDate:   incidentDate,
		ExplicitChoice: req.ChosenPolicyID,
	})
	if err != nil {
		return intakeOutcome{}, err
	}
	if resolution.InsurerID == uuid.Nil {
		return intakeOutcome{}, apperr.BadRequest("policy has no assigned insurer").WithCode(apperr.CodePolicyUnassigned)
	}

	documents, err := s.checkFiles(ctx, req.Documents, storage.KindDocument)
	if err != nil {
		return intakeOutcome{}, err
	}
	images, err := s.checkFiles(ctx, req.Images, storage.KindImage)
	if err != nil {
		return intakeOutcome{}, err
	}

	params := repository.CreateParams{
		FarmerID:       in.FarmerID,
		PolicyID:       resolution.PolicyID,
		ChosenPolicyID: resolution.ChosenPolicyID,
		AssignedToID:   resolution.InsurerID,
		IncidentDate:   incidentDate,
		IncidentType:   sanitize.Text(req.IncidentType),
		Description:    sanitize.Text(req.Description),
		ClaimedAmount:  req.ClaimedAmount,
		CropType:       req.CropType,
		AffectedArea:   req.AffectedArea,
		Documents:      append(documents, images...),
		Now:            now,
	}
	if req.Location != nil {
		params.Location = &domain.Location{Lat: req.Location.Lat, Lng: req.Location.Lng}
	}

	var body []byte
	var finalize repository.FinalizeFunc
	if key != "" {
		finalize = func(ctx context.Context, tx pgx.Tx, claim domain.Claim, docs []domain.Document) error {
			encoded, err := encodeClaim(claim, docs)
			if err != nil {
				return err
			}
			if err := s.ledger.MarkCompletedTx(ctx, tx, key, claim.ID, encoded); err != nil {
				return err
			}
			body = encoded
			return nil
		}
	}

	for attempt := 1; attempt <= claimNumberAttempts; attempt++ {
		number, err := domain.NewClaimNumber(now, nil)
		if err != nil {
			return intakeOutcome{}, persistFailed(err)
		}
		params.ClaimNumber = number

		claim, docs, err := s.repo.CreateWithDocuments(ctx, params, finalize)
		if errors.Is(err, repository.ErrClaimNumberTaken) {
			s.log.WithContext(ctx).Warn("claim number collision", "claim_number", number, "attempt", attempt)
			continue
		}
		if err != nil {
			return intakeOutcome{}, persistFailed(err)
		}

		if body == nil {
			if body, err = encodeClaim(claim, docs); err != nil {
				return intakeOutcome{}, err
			}
		}
		if resolution.Ambiguous {
			s.log.WithContext(ctx).Warn("claim routed to supplied policy among overlapping covers",
				"claim_id", claim.ID, "policy_id", resolution.PolicyID)
		}
		return intakeOutcome{claim: claim, docs: docs, resolution: resolution, body: body}, nil
	}
	return intakeOutcome{}, persistFailed(repository.ErrClaimNumberTaken)
}

func encodeClaim(claim domain.Claim, docs []domain.Document) ([]byte, error) {
	encoded, err := json.Marshal(transport.ToClaimResponse(claim, docs))
	if err != nil {
		return nil, fmt.Errorf("marshal claim response: %w", err)
	}
	return encoded, nil
}

func persistFailed(err error) error {
	return apperr.Wrap(apperr.KindInternal, "could not persist claim", err).WithCode(apperr.CodeClaimPersistFailed)
}

// checkFiles validates and scans each referenced object.
func (s *Service) checkFiles(ctx context.Context, paths []string, kind storage.FileKind) ([]repository.DocumentParams, error) {
	out := make([]repository.DocumentParams, 0, len(paths))
	for _, p := range paths {
		info, err := s.files.Validate(ctx, p, kind)
		if err != nil {
			return nil, err
		}
		scan, err := s.scanner.Scan(ctx, info.Path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "file scan failed", err)
		}
		if scan.Verdict != storage.VerdictClean {
			return nil, apperr.Validation(fmt.Sprintf("file %q failed the malware scan", info.Path)).WithCode(apperr.CodeInvalidFile)
		}
		out = append(out, repository.DocumentParams{
			Kind:        domain.DocumentKind(kind),
			FilePath:    info.Path,
			FileName:    path.Base(info.Path),
			ContentType: info.ContentType,
			SizeBytes:   info.SizeBytes,
		})
	}
	return out, nil
}

// enqueueAITasks stores the verification jobs in one batch after commit and
// dispatches them. Coverage terms come from the resolution intake already
// made. Failures are logged and counted; they never fail the submission.
func (s *Service) enqueueAITasks(ctx context.Context, claim domain.Claim, docs []domain.Document, resolution policies.Resolution) int {
	input := aitasks.Input{
		ClaimID:       claim.ID,
		ClaimNumber:   claim.ClaimNumber,
		FarmerID:      claim.FarmerID,
		PolicyID:      claim.ChosenPolicyID,
		IncidentDate:  claim.IncidentDate,
		IncidentType:  claim.IncidentType,
		ClaimedAmount: claim.ClaimedAmount,
		SumInsured:    resolution.SumInsured,
		CoverageStart: resolution.CoverageStart,
		CoverageEnd:   resolution.CoverageEnd,
		Location:      claim.Location,
		SubmittedAt:   claim.CreatedAt,
	}
	if claim.CropType != nil {
		input.CropType = *claim.CropType
	}
	for _, d := range docs {
		if d.Kind == domain.KindImage {
			input.Images = append(input.Images, d.FilePath)
		} else {
			input.Documents = append(input.Documents, d.FilePath)
		}
	}

	var wanted []aitasks.TaskType
	if len(input.Images) > 0 {
		wanted = append(wanted, aitasks.TaskOCR, aitasks.TaskFraudDetection)
	}
	if input.Location != nil {
		wanted = append(wanted, aitasks.TaskSatellite)
	}
	types := make([]aitasks.TaskType, 0, len(wanted))
	for _, t := range wanted {
		if !s.queue.Supports(t) {
			s.log.WithContext(ctx).Debug("no analyzer registered", "claim_id", claim.ID, "task_type", t)
			continue
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return 0
	}

	res, err := s.queue.EnqueueAll(ctx, claim.ID, types, input)
	if err != nil {
		failed := int64(len(types) - res.Dispatched)
		total := s.enqueueFailures.Add(failed)
		s.log.WithContext(ctx).Error("ai_enqueue_failed",
			"claim_id", claim.ID, "task_types", types, "failed", failed, "error", err, "total_failures", total)
	}
	return res.Dispatched
}
