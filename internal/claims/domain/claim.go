package domain

import (
	"time"

	"github.com/google/uuid"
)

// DocumentKind distinguishes supporting paperwork from damage photos.
type DocumentKind string

const (
	KindDocument DocumentKind = "document"
	KindImage    DocumentKind = "image"
)

// Location is a WGS84 point.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Document is a file reference attached to a claim.
type Document struct {
	ID          uuid.UUID    `json:"id"`
	ClaimID     uuid.UUID    `json:"claimId"`
	Kind        DocumentKind `json:"kind"`
	FilePath    string       `json:"filePath"`
	FileName    string       `json:"fileName"`
	ContentType string       `json:"contentType"`
	SizeBytes   int64        `json:"sizeBytes"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Claim is the persisted claim aggregate.
type Claim struct {
	ID                  uuid.UUID
	ClaimNumber         string
	FarmerID            uuid.UUID
	PolicyID            uuid.UUID
	ChosenPolicyID      uuid.UUID
	AssignedToID        uuid.UUID
	Status              Status
	VerificationStatus  VerificationStatus
	IncidentDate        time.Time
	IncidentType        string
	Description         string
	ClaimedAmount       float64
	CropType            *string
	AffectedArea        *float64
	Location            *Location
	AIDamagePercent     *float64
	AIRecommendedAmount *float64
	AIValidationFlags   []string
	AIReport            AIReport
	AdminNotes          *string
	AdminReviewedBy     *uuid.UUID
	AdminReviewedAt     *time.Time
	InsurerReport       *string
	RejectionReason     *string
	ApprovedAmount      *float64
	DecidedBy           *uuid.UUID
	DecidedAt           *time.Time
	PayoutStatus        *string
	PayoutTransactionID *string
	PayoutAmount        *float64
	PayoutDate          *time.Time
	DeletedAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasPayout reports whether settlement has been recorded.
func (c Claim) HasPayout() bool {
	return c.PayoutTransactionID != nil
}

// AIReport is the structured, per-task-type AI output stored on the claim.
type AIReport struct {
	OCR            *OCRReport       `json:"ocr,omitempty"`
	Satellite      *SatelliteReport `json:"satellite,omitempty"`
	FraudDetection *FraudReport     `json:"fraudDetection,omitempty"`
	AdminOverride  *AdminOverride   `json:"adminOverride,omitempty"`
}

// ImageMetadata is what EXIF tells us about one photo.
type ImageMetadata struct {
	FilePath   string     `json:"filePath"`
	CapturedAt *time.Time `json:"capturedAt,omitempty"`
	Lat        *float64   `json:"lat,omitempty"`
	Lng        *float64   `json:"lng,omitempty"`
	CameraMake string     `json:"cameraMake,omitempty"`
	Model      string     `json:"model,omitempty"`
	HasEXIF    bool       `json:"hasExif"`
}

// OCRReport is the image/document analysis output.
type OCRReport struct {
	ExtractedText  string          `json:"extractedText,omitempty"`
	DamageObserved string          `json:"damageObserved,omitempty"`
	DamagePercent  *float64        `json:"damagePercent,omitempty"`
	Confidence     float64         `json:"confidence"`
	Model          string          `json:"model,omitempty"`
	Images         []ImageMetadata `json:"images"`
}

// SatelliteReport is the vegetation index comparison at the claim location.
type SatelliteReport struct {
	NDVIBefore    float64   `json:"ndviBefore"`
	NDVIAfter     float64   `json:"ndviAfter"`
	DamagePercent float64   `json:"damagePercent"`
	Source        string    `json:"source"`
	CapturedAt    time.Time `json:"capturedAt"`
}

// FraudSignal is one rule that fired during fraud scoring.
type FraudSignal struct {
	Code   string  `json:"code"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail"`
}

// FraudReport is the rule-based fraud scoring output.
type FraudReport struct {
	RiskScore float64       `json:"riskScore"`
	Signals   []FraudSignal `json:"signals"`
}

// AdminOverride records a manual correction of the AI assessment.
type AdminOverride struct {
	AdminID           uuid.UUID `json:"adminId"`
	DamagePercent     *float64  `json:"damagePercent,omitempty"`
	RecommendedAmount *float64  `json:"recommendedAmount,omitempty"`
	ValidationFlags   []string  `json:"validationFlags,omitempty"`
	Reason            string    `json:"reason"`
	At                time.Time `json:"at"`
}
