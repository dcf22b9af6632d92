// Package transport defines the claim API request and response shapes.
package transport

import (
	"time"

	"claims_backend/internal/claims/domain"

	"github.com/google/uuid"
)

// Location is a WGS84 point.
type Location struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// CreateClaimRequest is the body of POST /claims. PolicyID accepts either
// the policy uuid or the farmer's policy number.
type CreateClaimRequest struct {
	PolicyID       string     `json:"policyId" validate:"required,max=100"`
	ChosenPolicyID *uuid.UUID `json:"chosenPolicyId,omitempty"`
	IncidentDate   string     `json:"incidentDate" validate:"required,datetime=2006-01-02"`
	IncidentType   string     `json:"incidentType" validate:"required,max=100"`
	Description    string     `json:"description" validate:"max=5000"`
	ClaimedAmount  float64    `json:"claimedAmount" validate:"required,gt=0"`
	CropType       *string    `json:"cropType,omitempty" validate:"omitempty,max=100"`
	AffectedArea   *float64   `json:"affectedArea,omitempty" validate:"omitempty,gt=0"`
	Location       *Location  `json:"location,omitempty"`
	Documents      []string   `json:"documents,omitempty" validate:"omitempty,max=20,dive,required,max=1024"`
	Images         []string   `json:"images,omitempty" validate:"omitempty,max=20,dive,required,max=1024"`
}

// ListClaimsRequest filters GET /claims.
type ListClaimsRequest struct {
	Status             string `form:"status" validate:"omitempty,oneof=pending under_review approved rejected resolved cancelled fraud_suspect"`
	VerificationStatus string `form:"verificationStatus" validate:"omitempty,oneof=Pending AI_Processed_Admin_Review AI_Satellite_Processed Manual_Review Verified fraud_suspect"`
	Page               int    `form:"page" validate:"omitempty,min=1"`
	PageSize           int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// ForwardRequest is the admin's hand-off note to the insurer.
type ForwardRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// RejectAIRequest sends a claim to manual review.
type RejectAIRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=2000"`
}

// OverrideAIRequest replaces parts of the AI assessment.
type OverrideAIRequest struct {
	DamagePercent     *float64 `json:"damagePercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	RecommendedAmount *float64 `json:"recommendedAmount,omitempty" validate:"omitempty,gte=0"`
	ValidationFlags   []string `json:"validationFlags,omitempty" validate:"omitempty,max=50,dive,required,max=100"`
	Reason            string   `json:"reason" validate:"required,min=10,max=2000"`
}

// ClearFraudRequest closes a fraud audit.
type ClearFraudRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=cleared confirmed"`
	Notes   string `json:"notes" validate:"required,min=10,max=2000"`
}

// SubmitReportRequest is the insurer's field report.
type SubmitReportRequest struct {
	Report string `json:"report" validate:"required,min=10,max=10000"`
}

// DecisionRequest approves or rejects a claim.
type DecisionRequest struct {
	Decision       string   `json:"decision" validate:"required,oneof=approve reject"`
	ApprovedAmount *float64 `json:"approvedAmount,omitempty" validate:"omitempty,gt=0"`
	Reason         string   `json:"reason" validate:"max=2000"`
}

// FlagFraudRequest raises a fraud suspicion.
type FlagFraudRequest struct {
	Reason string `json:"reason" validate:"required,min=10,max=2000"`
}

// PayoutRequest records the settlement of an approved claim.
type PayoutRequest struct {
	Amount        float64    `json:"amount" validate:"required,gt=0"`
	TransactionID string     `json:"transactionId" validate:"required,max=100"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

// AssignedTo summarizes the insurer handling the claim.
type AssignedTo struct {
	ID   uuid.UUID `json:"id"`
	Role string    `json:"role"`
}

// DocumentResponse is a stored file reference.
type DocumentResponse struct {
	ID          uuid.UUID `json:"id"`
	FilePath    string    `json:"filePath"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ClaimResponse is the claim projection returned by every claim endpoint.
type ClaimResponse struct {
	ID                  uuid.UUID                 `json:"id"`
	ClaimID             string                    `json:"claimId"`
	FarmerID            uuid.UUID                 `json:"farmerId"`
	PolicyID            uuid.UUID                 `json:"policyId"`
	ChosenPolicyID      uuid.UUID                 `json:"chosenPolicyId"`
	AssignedTo          AssignedTo                `json:"assignedTo"`
	Status              domain.Status             `json:"status"`
	VerificationStatus  domain.VerificationStatus `json:"verificationStatus"`
	IncidentDate        string                    `json:"incidentDate"`
	IncidentType        string                    `json:"incidentType"`
	Description         string                    `json:"description"`
	ClaimedAmount       float64                   `json:"claimedAmount"`
	CropType            *string                   `json:"cropType,omitempty"`
	AffectedArea        *float64                  `json:"affectedArea,omitempty"`
	Location            *domain.Location          `json:"location,omitempty"`
	AIDamagePercent     *float64                  `json:"aiDamagePercent"`
	AIRecommendedAmount *float64                  `json:"aiRecommendedAmount"`
	AIValidationFlags   []string                  `json:"aiValidationFlags"`
	AIReport            domain.AIReport           `json:"aiReport"`
	AdminNotes          *string                   `json:"adminNotes,omitempty"`
	InsurerReport       *string                   `json:"insurerReport,omitempty"`
	RejectionReason     *string                   `json:"rejectionReason,omitempty"`
	ApprovedAmount      *float64                  `json:"approvedAmount,omitempty"`
	PayoutStatus        *string                   `json:"payoutStatus,omitempty"`
	PayoutTransactionID *string                   `json:"payoutTransactionId,omitempty"`
	PayoutAmount        *float64                  `json:"payoutAmount,omitempty"`
	PayoutDate          *time.Time                `json:"payoutDate,omitempty"`
	Documents           []DocumentResponse        `json:"documents"`
	Images              []DocumentResponse        `json:"images"`
	CreatedAt           time.Time                 `json:"createdAt"`
	UpdatedAt           time.Time                 `json:"updatedAt"`
}

// ListClaimsResponse is one page of claims.
type ListClaimsResponse struct {
	Items      []ClaimResponse `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

// ToClaimResponse projects a claim and its files.
func ToClaimResponse(c domain.Claim, docs []domain.Document) ClaimResponse {
	resp := ClaimResponse{
		ID:                  c.ID,
		ClaimID:             c.ClaimNumber,
		FarmerID:            c.FarmerID,
		PolicyID:            c.PolicyID,
		ChosenPolicyID:      c.ChosenPolicyID,
		AssignedTo:          AssignedTo{ID: c.AssignedToID, Role: "insurer"},
		Status:              c.Status,
		VerificationStatus:  c.VerificationStatus,
		IncidentDate:        c.IncidentDate.Format("2006-01-02"),
		IncidentType:        c.IncidentType,
		Description:         c.Description,
		ClaimedAmount:       c.ClaimedAmount,
		CropType:            c.CropType,
		AffectedArea:        c.AffectedArea,
		Location:            c.Location,
		AIDamagePercent:     c.AIDamagePercent,
		AIRecommendedAmount: c.AIRecommendedAmount,
		AIValidationFlags:   c.AIValidationFlags,
		AIReport:            c.AIReport,
		AdminNotes:          c.AdminNotes,
		InsurerReport:       c.InsurerReport,
		RejectionReason:     c.RejectionReason,
		ApprovedAmount:      c.ApprovedAmount,
		PayoutStatus:        c.PayoutStatus,
		PayoutTransactionID: c.PayoutTransactionID,
		PayoutAmount:        c.PayoutAmount,
		PayoutDate:          c.PayoutDate,
		Documents:           []DocumentResponse{},
		Images:              []DocumentResponse{},
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
	if resp.AIValidationFlags == nil {
		resp.AIValidationFlags = []string{}
	}
	for _, d := range docs {
		item := DocumentResponse{
			ID:          d.ID,
			FilePath:    d.FilePath,
			FileName:    d.FileName,
			ContentType: d.ContentType,
			SizeBytes:   d.SizeBytes,
			CreatedAt:   d.CreatedAt,
		}
		if d.Kind == domain.KindImage {
			resp.Images = append(resp.Images, item)
		} else {
			resp.Documents = append(resp.Documents, item)
		}
	}
	return resp
}
