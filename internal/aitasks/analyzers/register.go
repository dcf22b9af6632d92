package analyzers

import (
	"context"
	"fmt"

	"claims_backend/internal/adapters/storage"
	"claims_backend/internal/aitasks"
	"claims_backend/platform/config"
	"claims_backend/platform/logger"
)

// Registrar is the part of the queue that accepts handlers.
type Registrar interface {
	Register(taskType aitasks.TaskType, h aitasks.Handler)
}

// RegisterAll installs the analyzers the configuration enables. OCR and
// fraud scoring always run; Gemini backs OCR only when an API key is set and
// satellite comparison only when a provider URL is set.
func RegisterAll(ctx context.Context, q Registrar, reader storage.ObjectReader, cfg config.AIConfig, log *logger.Logger) error {
	var model DamageModel
	if cfg.IsGeminiEnabled() {
		gemini, err := NewGeminiModel(ctx, cfg.GetGeminiAPIKey(), cfg.GetGeminiModel())
		if err != nil {
			return fmt.Errorf("init gemini damage model: %w", err)
		}
		model = gemini
		log.Info("gemini damage model enabled", "model", cfg.GetGeminiModel())
	} else {
		log.Warn("GEMINI_API_KEY not configured; damage assessment falls back to manual review")
	}

	q.Register(aitasks.TaskOCR, NewOCR(reader, model, log))
	q.Register(aitasks.TaskFraudDetection, NewFraud(reader, log))

	if cfg.IsSatelliteEnabled() {
		q.Register(aitasks.TaskSatellite, NewSatellite(NewSatelliteClient(cfg.GetSatelliteAPIURL(), cfg.GetSatelliteAPIKey(), log)))
		log.Info("satellite analyzer enabled", "url", cfg.GetSatelliteAPIURL())
	}
	return nil
}
