package analyzers

import (
	"context"

	"claims_backend/internal/adapters/storage"
	"claims_backend/internal/aitasks"
	"claims_backend/internal/claims/domain"
	"claims_backend/platform/logger"
)

// LowConfidenceThreshold marks model assessments that need a human look.
const LowConfidenceThreshold = 0.5

// DamageAssessment is a model's reading of the claim photos.
type DamageAssessment struct {
	ExtractedText  string   `json:"extractedText"`
	DamageObserved string   `json:"damageObserved"`
	DamagePercent  *float64 `json:"damagePercent"`
	Confidence     float64  `json:"confidence"`
	Model          string   `json:"-"`
}

// DamageModel assesses crop damage from photos.
type DamageModel interface {
	Assess(ctx context.Context, images []Image, in aitasks.Input) (DamageAssessment, error)
}

// OCR reads the claim photos, records their EXIF metadata and, when a model
// is configured, asks it for a damage estimate.
type OCR struct {
	reader storage.ObjectReader
	model  DamageModel
	log    *logger.Logger
}

// NewOCR builds the handler. model may be nil.
func NewOCR(reader storage.ObjectReader, model DamageModel, log *logger.Logger) *OCR {
	return &OCR{reader: reader, model: model, log: log}
}

func (o *OCR) Handle(ctx context.Context, in aitasks.Input) (aitasks.Result, error) {
	images, err := loadImages(ctx, o.reader, in.Images, o.log)
	if err != nil {
		return aitasks.Result{}, err
	}

	report := &domain.OCRReport{Images: metadataFor(images)}
	result := aitasks.Result{Report: report}

	if o.model == nil {
		result.ValidationFlags = []string{"manual_damage_assessment"}
		return result, nil
	}

	assessment, err := o.model.Assess(ctx, images, in)
	if err != nil {
		return aitasks.Result{}, err
	}

	report.ExtractedText = assessment.ExtractedText
	report.DamageObserved = assessment.DamageObserved
	report.DamagePercent = assessment.DamagePercent
	report.Confidence = assessment.Confidence
	report.Model = assessment.Model

	if assessment.DamagePercent != nil {
		damage := clampPercent(*assessment.DamagePercent)
		recommended := domain.RecommendedAmount(in.ClaimedAmount, in.SumInsured, damage)
		result.DamagePercent = &damage
		result.RecommendedAmount = &recommended
	}
	if assessment.Confidence < LowConfidenceThreshold {
		result.ValidationFlags = append(result.ValidationFlags, "low_ai_confidence")
	}
	return result, nil
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

var _ aitasks.Handler = (*OCR)(nil)
