package analyzers

import (
	"context"
	"testing"

	"claims_backend/internal/aitasks"
	"claims_backend/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type aiConfig struct {
	satelliteURL string
}

func (aiConfig) GetGeminiAPIKey() string      { return "" }
func (aiConfig) GetGeminiModel() string       { return "" }
func (aiConfig) IsGeminiEnabled() bool        { return false }
func (c aiConfig) GetSatelliteAPIURL() string { return c.satelliteURL }
func (aiConfig) GetSatelliteAPIKey() string   { return "key" }
func (c aiConfig) IsSatelliteEnabled() bool   { return c.satelliteURL != "" }

type registry map[aitasks.TaskType]aitasks.Handler

func (r registry) Register(taskType aitasks.TaskType, h aitasks.Handler) { r[taskType] = h }

func TestRegisterAllWithoutOptionalProviders(t *testing.T) {
	reg := registry{}
	require.NoError(t, RegisterAll(context.Background(), reg, nil, aiConfig{}, logger.Discard()))

	assert.Contains(t, reg, aitasks.TaskOCR)
	assert.Contains(t, reg, aitasks.TaskFraudDetection)
	assert.NotContains(t, reg, aitasks.TaskSatellite)
	assert.Nil(t, reg[aitasks.TaskOCR].(*OCR).model)
}

func TestRegisterAllWithSatellite(t *testing.T) {
	reg := registry{}
	require.NoError(t, RegisterAll(context.Background(), reg, nil, aiConfig{satelliteURL: "http://ndvi.local"}, logger.Discard()))

	assert.Contains(t, reg, aitasks.TaskSatellite)
}
