package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"claims_backend/internal/aitasks"
	"claims_backend/internal/claims/domain"
	"claims_backend/platform/logger"
)

const (
	// ndviLookback is how far before the incident the baseline image is taken.
	ndviLookback = 14 * 24 * time.Hour
	// LowSatelliteDamagePercent flags claims the imagery barely supports.
	LowSatelliteDamagePercent = 10.0
)

// NDVIReading is a before/after vegetation index pair at one location.
type NDVIReading struct {
	Before     float64   `json:"ndviBefore"`
	After      float64   `json:"ndviAfter"`
	Source     string    `json:"source"`
	CapturedAt time.Time `json:"capturedAt"`
}

// NDVIProvider looks up vegetation indices around a date.
type NDVIProvider interface {
	NDVI(ctx context.Context, loc domain.Location, before, after time.Time) (NDVIReading, error)
}

// SatelliteClient is the HTTP client for the imagery-analysis API.
type SatelliteClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *logger.Logger
}

// NewSatelliteClient creates a client for baseURL.
func NewSatelliteClient(baseURL, apiKey string, log *logger.Logger) *SatelliteClient {
	return &SatelliteClient{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		log:        log,
	}
}

func (c *SatelliteClient) NDVI(ctx context.Context, loc domain.Location, before, after time.Time) (NDVIReading, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(loc.Lat, 'f', 6, 64))
	params.Set("lng", strconv.FormatFloat(loc.Lng, 'f', 6, 64))
	params.Set("before", before.Format("2006-01-02"))
	params.Set("after", after.Format("2006-01-02"))
	reqURL := fmt.Sprintf("%s/v1/ndvi?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return NDVIReading{}, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("satellite request failed", "error", err, "url", reqURL)
		return NDVIReading{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		c.log.Error("satellite unauthorized", "status", resp.StatusCode)
		return NDVIReading{}, fmt.Errorf("unauthorized: invalid API key")
	case http.StatusNotFound:
		return NDVIReading{}, fmt.Errorf("no imagery available for %s", reqURL)
	default:
		c.log.Error("satellite upstream error", "status", resp.StatusCode, "url", reqURL)
		return NDVIReading{}, fmt.Errorf("upstream error: status %d", resp.StatusCode)
	}

	var reading NDVIReading
	if err := json.NewDecoder(resp.Body).Decode(&reading); err != nil {
		return NDVIReading{}, fmt.Errorf("decode response: %w", err)
	}
	if reading.Source == "" {
		reading.Source = "satellite-api"
	}
	return reading, nil
}

// Satellite compares vegetation before and after the incident.
type Satellite struct {
	provider NDVIProvider
}

// NewSatellite builds the handler.
func NewSatellite(provider NDVIProvider) *Satellite {
	return &Satellite{provider: provider}
}

func (s *Satellite) Handle(ctx context.Context, in aitasks.Input) (aitasks.Result, error) {
	if in.Location == nil {
		return aitasks.Result{}, errNoLocation
	}

	reading, err := s.provider.NDVI(ctx, *in.Location, in.IncidentDate.Add(-ndviLookback), in.IncidentDate)
	if err != nil {
		return aitasks.Result{}, err
	}

	damage := NDVIDamagePercent(reading.Before, reading.After)
	recommended := domain.RecommendedAmount(in.ClaimedAmount, in.SumInsured, damage)

	result := aitasks.Result{
		DamagePercent:     &damage,
		RecommendedAmount: &recommended,
		Report: &domain.SatelliteReport{
			NDVIBefore:    reading.Before,
			NDVIAfter:     reading.After,
			DamagePercent: damage,
			Source:        reading.Source,
			CapturedAt:    reading.CapturedAt,
		},
	}
	if damage < LowSatelliteDamagePercent {
		result.ValidationFlags = []string{"low_satellite_damage"}
	}
	return result, nil
}

// NDVIDamagePercent is the relative vegetation loss, clamped to 0..100.
func NDVIDamagePercent(before, after float64) float64 {
	if before <= 0 {
		return 0
	}
	return clampPercent((before - after) / before * 100)
}

var (
	_ NDVIProvider    = (*SatelliteClient)(nil)
	_ aitasks.Handler = (*Satellite)(nil)
)
