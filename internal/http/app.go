package http

import (
	"context"

	"claims_backend/internal/events"
	"claims_backend/platform/config"
	"claims_backend/platform/httpkit"
	"claims_backend/platform/logger"
)

// RouterConfig is the configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs GET /api/health. *pgxpool.Pool satisfies it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled by cmd/api and handed to router.New.
type App struct {
	Config            RouterConfig
	Logger            *logger.Logger
	Health            HealthChecker
	EventBus          events.Bus
	SubmissionLimiter *httpkit.IPRateLimiter
	Modules           []Module
}
