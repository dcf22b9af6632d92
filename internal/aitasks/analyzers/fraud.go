package analyzers

import (
	"context"
	"fmt"
	"math"
	"time"

	"claims_backend/internal/adapters/storage"
	"claims_backend/internal/aitasks"
	"claims_backend/internal/claims/domain"
	"claims_backend/platform/logger"
)

const (
	// HighFraudRiskThreshold is the score at which the high_fraud_risk flag is raised.
	HighFraudRiskThreshold = 0.7
	// MaxPhotoDistanceKm is how far a photo may be taken from the claimed location.
	MaxPhotoDistanceKm = 5.0

	FlagHighFraudRisk = "high_fraud_risk"
)

// Fraud signal codes and weights.
const (
	SignalCapturedOutsideCover  = "photo_outside_coverage"
	SignalCapturedAfterSubmit   = "photo_after_submission"
	SignalLocationMismatch      = "photo_location_mismatch"
	SignalAmountAboveSumInsured = "amount_exceeds_sum_insured"
	SignalMissingEXIF           = "missing_exif"

	weightCapturedOutsideCover  = 0.4
	weightCapturedAfterSubmit   = 0.4
	weightLocationMismatch      = 0.4
	weightAmountAboveSumInsured = 0.3
	weightMissingEXIF           = 0.2
)

// Fraud scores a claim against its photo metadata.
type Fraud struct {
	reader storage.ObjectReader
	log    *logger.Logger
}

// NewFraud builds the handler.
func NewFraud(reader storage.ObjectReader, log *logger.Logger) *Fraud {
	return &Fraud{reader: reader, log: log}
}

func (f *Fraud) Handle(ctx context.Context, in aitasks.Input) (aitasks.Result, error) {
	images, err := loadImages(ctx, f.reader, in.Images, f.log)
	if err != nil {
		return aitasks.Result{}, err
	}

	report := ScoreFraud(in, metadataFor(images))
	result := aitasks.Result{Report: &report}
	for _, s := range report.Signals {
		result.ValidationFlags = append(result.ValidationFlags, s.Code)
	}
	if report.RiskScore >= HighFraudRiskThreshold {
		result.ValidationFlags = append(result.ValidationFlags, FlagHighFraudRisk)
	}
	return result, nil
}

// ScoreFraud applies the fraud rules. Each rule contributes its weight once
// and the score saturates at 1.
func ScoreFraud(in aitasks.Input, images []domain.ImageMetadata) domain.FraudReport {
	var (
		outside, afterSubmit, missing int
		farthest                      float64
		far                           int
	)
	// Without known coverage terms the capture-date rule cannot be judged.
	knownCover := !in.CoverageStart.IsZero() && !in.CoverageEnd.IsZero()
	coverEnd := in.CoverageEnd.AddDate(0, 0, 1)

	for _, img := range images {
		if !img.HasEXIF {
			missing++
			continue
		}
		if img.CapturedAt != nil {
			captured := *img.CapturedAt
			if knownCover && (captured.Before(in.CoverageStart) || !captured.Before(coverEnd)) {
				outside++
			}
			if !in.SubmittedAt.IsZero() && captured.After(in.SubmittedAt) {
				afterSubmit++
			}
		}
		if in.Location != nil && img.Lat != nil && img.Lng != nil {
			d := DistanceKm(in.Location.Lat, in.Location.Lng, *img.Lat, *img.Lng)
			if d > MaxPhotoDistanceKm {
				far++
				farthest = math.Max(farthest, d)
			}
		}
	}

	report := domain.FraudReport{Signals: []domain.FraudSignal{}}
	add := func(code string, weight float64, detail string) {
		report.Signals = append(report.Signals, domain.FraudSignal{Code: code, Weight: weight, Detail: detail})
		report.RiskScore += weight
	}

	if outside > 0 {
		add(SignalCapturedOutsideCover, weightCapturedOutsideCover,
			fmt.Sprintf("%d photo(s) taken outside %s..%s", outside, day(in.CoverageStart), day(in.CoverageEnd)))
	}
	if afterSubmit > 0 {
		add(SignalCapturedAfterSubmit, weightCapturedAfterSubmit,
			fmt.Sprintf("%d photo(s) taken after submission at %s", afterSubmit, in.SubmittedAt.Format(time.RFC3339)))
	}
	if far > 0 {
		add(SignalLocationMismatch, weightLocationMismatch,
			fmt.Sprintf("%d photo(s) taken more than %.0f km away (farthest %.1f km)", far, MaxPhotoDistanceKm, farthest))
	}
	if in.SumInsured > 0 && in.ClaimedAmount > in.SumInsured {
		add(SignalAmountAboveSumInsured, weightAmountAboveSumInsured,
			fmt.Sprintf("claimed %.2f exceeds sum insured %.2f", in.ClaimedAmount, in.SumInsured))
	}
	if missing > 0 {
		add(SignalMissingEXIF, weightMissingEXIF, fmt.Sprintf("%d of %d photo(s) carry no EXIF metadata", missing, len(images)))
	}

	report.RiskScore = math.Min(1, math.Round(report.RiskScore*100)/100)
	return report
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}

var _ aitasks.Handler = (*Fraud)(nil)
