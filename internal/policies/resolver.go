package policies

import (
	"context"
	"strings"
	"time"

	"claims_backend/platform/apperr"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
)

// ResolveInput is what a submission tells us about its policy.
type ResolveInput struct {
	FarmerID       uuid.UUID
	PolicyRef      string
	IncidentDate   time.Time
	ExplicitChoice *uuid.UUID
}

// Resolution is the routing outcome. PolicyID is the policy the farmer
// supplied; ChosenPolicyID is the one whose insurer receives the claim.
type Resolution struct {
	PolicyID       uuid.UUID
	ChosenPolicyID uuid.UUID
	InsurerID      uuid.UUID
	SumInsured     float64
	CoverageStart  time.Time
	CoverageEnd    time.Time
	Ambiguous      bool
}

// Resolver picks the authoritative policy for a claim.
type Resolver struct {
	reader Reader
	log    *logger.Logger
}

func NewResolver(reader Reader, log *logger.Logger) *Resolver {
	return &Resolver{reader: reader, log: log}
}

// Resolve validates the supplied policy and selects the insurer.
//
// When several active policies cover the incident date and the farmer made no
// explicit choice, the supplied policy is used.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (Resolution, error) {
	supplied, err := r.lookup(ctx, in.FarmerID, in.PolicyRef)
	if err != nil {
		return Resolution{}, err
	}
	if err := checkUsable(supplied, in.FarmerID); err != nil {
		return Resolution{}, err
	}

	chosen := supplied
	ambiguous := false

	if in.ExplicitChoice != nil {
		explicit, err := r.reader.GetByID(ctx, *in.ExplicitChoice)
		if err != nil {
			return Resolution{}, err
		}
		if err := checkUsable(explicit, in.FarmerID); err != nil {
			return Resolution{}, err
		}
		chosen = explicit
	} else {
		covering, err := r.reader.ListActiveCovering(ctx, in.FarmerID, in.IncidentDate)
		if err != nil {
			return Resolution{}, err
		}
		switch len(covering) {
		case 0:
		case 1:
			chosen = covering[0]
		default:
			ambiguous = true
			ids := make([]string, 0, len(covering))
			for _, p := range covering {
				ids = append(ids, p.ID.String())
			}
			r.log.Warn("multiple active policies cover incident date",
				"farmerId", in.FarmerID, "suppliedPolicyId", supplied.ID, "coveringPolicyIds", strings.Join(ids, ","))
		}
	}

	if chosen.ServiceProviderID == nil || *chosen.ServiceProviderID == uuid.Nil {
		return Resolution{}, apperr.BadRequest("policy has no assigned insurer").WithCode(apperr.CodePolicyUnassigned)
	}

	return Resolution{
		PolicyID:       supplied.ID,
		ChosenPolicyID: chosen.ID,
		InsurerID:      *chosen.ServiceProviderID,
		SumInsured:     chosen.SumInsured,
		CoverageStart:  chosen.StartDate,
		CoverageEnd:    chosen.EndDate,
		Ambiguous:      ambiguous,
	}, nil
}

// lookup tries the reference as an internal id first, then as a policy number
// scoped to the farmer.
func (r *Resolver) lookup(ctx context.Context, farmerID uuid.UUID, ref string) (Policy, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Policy{}, apperr.Validation("policyId is required").WithCode(apperr.CodeValidationFailed)
	}

	if id, err := uuid.Parse(ref); err == nil {
		p, err := r.reader.GetByID(ctx, id)
		if err == nil {
			return p, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return Policy{}, err
		}
	}

	p, err := r.reader.GetByNumber(ctx, farmerID, ref)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Policy{}, apperr.NotFound("policy not found").WithCode(apperr.CodePolicyNotFound)
		}
		return Policy{}, err
	}
	return p, nil
}

func checkUsable(p Policy, farmerID uuid.UUID) error {
	if p.FarmerID != farmerID {
		return apperr.Forbidden("policy does not belong to this farmer").WithCode(apperr.CodePolicyNotOwned)
	}
	if p.Status != StatusActive {
		return apperr.BadRequest("policy is not active").WithCode(apperr.CodePolicyInactive)
	}
	return nil
}
