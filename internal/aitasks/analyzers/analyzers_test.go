package analyzers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"claims_backend/internal/aitasks"
	"claims_backend/internal/claims/domain"
	"claims_backend/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	objects map[string][]byte
}

func (f *fakeReader) ReadObject(_ context.Context, path string, _ int64) ([]byte, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

type fakeModel struct {
	assessment DamageAssessment
	err        error
	gotImages  int
}

func (m *fakeModel) Assess(_ context.Context, images []Image, _ aitasks.Input) (DamageAssessment, error) {
	m.gotImages = len(images)
	return m.assessment, m.err
}

func ptr[T any](v T) *T { return &v }

func baseInput() aitasks.Input {
	incident := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	return aitasks.Input{
		ClaimNumber:   "CLM-1-000001-001",
		IncidentDate:  incident,
		IncidentType:  "hail",
		ClaimedAmount: 4000,
		SumInsured:    10000,
		CoverageStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CoverageEnd:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Location:      &domain.Location{Lat: 52.3676, Lng: 4.9041},
		Images:        []string{"claims/a.jpg", "claims/b.jpg"},
		SubmittedAt:   incident.Add(48 * time.Hour),
	}
}

func TestDistanceKm(t *testing.T) {
	assert.InDelta(t, 57.0, DistanceKm(52.3676, 4.9041, 51.9244, 4.4777), 2.0)
	assert.InDelta(t, 0.0, DistanceKm(10, 10, 10, 10), 1e-9)
}

func TestScoreFraudCleanPhotos(t *testing.T) {
	in := baseInput()
	captured := in.IncidentDate.Add(3 * time.Hour)
	images := []domain.ImageMetadata{
		{FilePath: "claims/a.jpg", HasEXIF: true, CapturedAt: &captured, Lat: ptr(52.37), Lng: ptr(4.90)},
	}

	report := ScoreFraud(in, images)

	assert.Zero(t, report.RiskScore)
	assert.Empty(t, report.Signals)
}

func TestScoreFraudAccumulatesSignals(t *testing.T) {
	in := baseInput()
	in.ClaimedAmount = 12000
	late := in.SubmittedAt.Add(time.Hour)
	images := []domain.ImageMetadata{
		{FilePath: "claims/a.jpg", HasEXIF: true, CapturedAt: &late, Lat: ptr(51.9244), Lng: ptr(4.4777)},
		{FilePath: "claims/b.jpg"},
	}

	report := ScoreFraud(in, images)

	codes := make([]string, 0, len(report.Signals))
	for _, s := range report.Signals {
		codes = append(codes, s.Code)
	}
	assert.ElementsMatch(t, []string{
		SignalCapturedAfterSubmit, SignalLocationMismatch, SignalAmountAboveSumInsured, SignalMissingEXIF,
	}, codes)
	assert.Equal(t, 1.0, report.RiskScore)
}

func TestScoreFraudCoverageWindowIsInclusive(t *testing.T) {
	in := baseInput()
	in.SubmittedAt = time.Time{}
	lastDay := in.CoverageEnd.Add(23 * time.Hour)
	dayAfter := in.CoverageEnd.AddDate(0, 0, 1)

	assert.Empty(t, ScoreFraud(in, []domain.ImageMetadata{{HasEXIF: true, CapturedAt: &lastDay}}).Signals)

	report := ScoreFraud(in, []domain.ImageMetadata{{HasEXIF: true, CapturedAt: &dayAfter}})
	require.Len(t, report.Signals, 1)
	assert.Equal(t, SignalCapturedOutsideCover, report.Signals[0].Code)
}

func TestScoreFraudSkipsCoverRuleWithoutCoverageTerms(t *testing.T) {
	in := baseInput()
	in.CoverageStart, in.CoverageEnd, in.SumInsured = time.Time{}, time.Time{}, 0
	captured := in.IncidentDate.Add(3 * time.Hour)

	report := ScoreFraud(in, []domain.ImageMetadata{{HasEXIF: true, CapturedAt: &captured, Lat: ptr(52.37), Lng: ptr(4.90)}})

	assert.Empty(t, report.Signals)
	assert.Zero(t, report.RiskScore)
}

func TestFraudHandlerFlagsPhotosWithoutEXIF(t *testing.T) {
	reader := &fakeReader{objects: map[string][]byte{
		"claims/a.jpg": []byte("not a jpeg"),
		"claims/b.jpg": []byte("also not a jpeg"),
	}}
	in := baseInput()
	in.ClaimedAmount = 20000

	result, err := NewFraud(reader, logger.Discard()).Handle(context.Background(), in)

	require.NoError(t, err)
	report, ok := result.Report.(*domain.FraudReport)
	require.True(t, ok)
	assert.Equal(t, 0.5, report.RiskScore)
	assert.ElementsMatch(t, []string{SignalMissingEXIF, SignalAmountAboveSumInsured}, result.ValidationFlags)
	assert.NotContains(t, result.ValidationFlags, FlagHighFraudRisk)
}

func TestScoreFraudReachesHighRisk(t *testing.T) {
	in := baseInput()
	in.ClaimedAmount = 20000
	late := in.SubmittedAt.Add(time.Hour)

	report := ScoreFraud(in, []domain.ImageMetadata{{HasEXIF: true, CapturedAt: &late}})
	assert.GreaterOrEqual(t, report.RiskScore, HighFraudRiskThreshold)
}

func TestOCRWithoutModelRecordsMetadataOnly(t *testing.T) {
	reader := &fakeReader{objects: map[string][]byte{"claims/a.jpg": []byte("x")}}
	in := baseInput()

	result, err := NewOCR(reader, nil, logger.Discard()).Handle(context.Background(), in)

	require.NoError(t, err)
	assert.Nil(t, result.DamagePercent)
	assert.Equal(t, []string{"manual_damage_assessment"}, result.ValidationFlags)
	report := result.Report.(*domain.OCRReport)
	require.Len(t, report.Images, 1)
	assert.False(t, report.Images[0].HasEXIF)
}

func TestOCRUsesModelAssessment(t *testing.T) {
	reader := &fakeReader{objects: map[string][]byte{"claims/a.jpg": []byte("x"), "claims/b.jpg": []byte("y")}}
	model := &fakeModel{assessment: DamageAssessment{
		DamageObserved: "hail-flattened wheat",
		DamagePercent:  ptr(60.0),
		Confidence:     0.3,
		Model:          "test-model",
	}}

	result, err := NewOCR(reader, model, logger.Discard()).Handle(context.Background(), baseInput())

	require.NoError(t, err)
	assert.Equal(t, 2, model.gotImages)
	require.NotNil(t, result.DamagePercent)
	assert.Equal(t, 60.0, *result.DamagePercent)
	require.NotNil(t, result.RecommendedAmount)
	assert.Equal(t, 4000.0, *result.RecommendedAmount)
	assert.Contains(t, result.ValidationFlags, "low_ai_confidence")
	assert.Equal(t, "test-model", result.Report.(*domain.OCRReport).Model)
}

func TestOCRFailsWhenNoImageCanBeRead(t *testing.T) {
	_, err := NewOCR(&fakeReader{}, nil, logger.Discard()).Handle(context.Background(), baseInput())
	assert.Error(t, err)
}

func TestOCRModelErrorIsReturned(t *testing.T) {
	reader := &fakeReader{objects: map[string][]byte{"claims/a.jpg": []byte("x")}}
	model := &fakeModel{err: errors.New("quota exhausted")}

	_, err := NewOCR(reader, model, logger.Discard()).Handle(context.Background(), baseInput())
	assert.ErrorContains(t, err, "quota exhausted")
}

func TestParseAssessment(t *testing.T) {
	got, err := parseAssessment("```json\n{\"damageObserved\":\"lodging\",\"damagePercent\":42.5,\"confidence\":1.4}\n```")
	require.NoError(t, err)
	assert.Equal(t, "lodging", got.DamageObserved)
	require.NotNil(t, got.DamagePercent)
	assert.Equal(t, 42.5, *got.DamagePercent)
	assert.Equal(t, 1.0, got.Confidence)

	_, err = parseAssessment("  ")
	assert.Error(t, err)
	_, err = parseAssessment("not json")
	assert.Error(t, err)
}

func TestNDVIDamagePercent(t *testing.T) {
	assert.InDelta(t, 75.0, NDVIDamagePercent(0.8, 0.2), 1e-9)
	assert.Equal(t, 0.0, NDVIDamagePercent(0.4, 0.6))
	assert.Equal(t, 0.0, NDVIDamagePercent(0, 0.2))
}

func TestSatelliteHandlerCallsImageryAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ndvi", r.URL.Path)
		assert.Equal(t, "Bearer sat-key", r.Header.Get("Authorization"))
		assert.Equal(t, "2026-05-27", r.URL.Query().Get("before"))
		assert.Equal(t, "2026-06-10", r.URL.Query().Get("after"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ndviBefore":0.8,"ndviAfter":0.4,"source":"sentinel-2","capturedAt":"2026-06-11T10:00:00Z"}`))
	}))
	defer srv.Close()

	sat := NewSatellite(NewSatelliteClient(srv.URL, "sat-key", logger.Discard()))
	result, err := sat.Handle(context.Background(), baseInput())

	require.NoError(t, err)
	require.NotNil(t, result.DamagePercent)
	assert.InDelta(t, 50.0, *result.DamagePercent, 1e-9)
	assert.InDelta(t, 4000.0, *result.RecommendedAmount, 1e-9)
	assert.Empty(t, result.ValidationFlags)
	assert.Equal(t, "sentinel-2", result.Report.(*domain.SatelliteReport).Source)
}

func TestSatelliteHandlerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewSatellite(NewSatelliteClient(srv.URL, "", logger.Discard())).Handle(context.Background(), baseInput())
	assert.ErrorContains(t, err, "status 502")
}

func TestSatelliteHandlerRequiresLocation(t *testing.T) {
	in := baseInput()
	in.Location = nil
	_, err := NewSatellite(nil).Handle(context.Background(), in)
	assert.ErrorIs(t, err, errNoLocation)
}
