// Package http holds the contracts between the router and the bounded
// contexts that mount routes on it.
package http

import (
	"claims_backend/platform/config"
	"claims_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a bounded context with HTTP routes. The router calls
// RegisterRoutes once, in the order modules are listed in App.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is what a module may attach routes and middleware to.
//
// Protected requires a valid access token. Admin is Protected plus an admin
// or super_admin role, mounted at /admin. Capability checks are still the
// module's job.
type RouterContext struct {
	Engine    *gin.Engine
	V1        *gin.RouterGroup
	Protected *gin.RouterGroup
	Admin     *gin.RouterGroup

	Config         config.JWTConfig
	AuthMiddleware gin.HandlerFunc

	// SubmissionLimiter throttles claim submissions per client IP. Nil
	// disables throttling.
	SubmissionLimiter *httpkit.IPRateLimiter
}
