package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apphttp "claims_backend/internal/http"
	"claims_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct{}

func (testConfig) GetHTTPAddr() string        { return ":0" }
func (testConfig) GetCORSAllowAll() bool      { return false }
func (testConfig) GetCORSOrigins() []string   { return []string{"http://localhost:4200"} }
func (testConfig) GetCORSAllowCreds() bool    { return true }
func (testConfig) GetJWTAccessSecret() string { return "router-secret" }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type probeModule struct{}

func (probeModule) Name() string { return "probe" }

func (probeModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/probe", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	ctx.Admin.GET("/probe", func(c *gin.Context) { c.Status(http.StatusNoContent) })
}

func newEngine(health apphttp.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(&apphttp.App{
		Config:  testConfig{},
		Logger:  logger.Discard(),
		Health:  health,
		Modules: []apphttp.Module{probeModule{}},
	})
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   uuid.NewString(),
		"type":  "access",
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("router-secret"))
	require.NoError(t, err)
	return signed
}

func get(engine *gin.Engine, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsDatabaseState(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(newEngine(pinger{}), "/api/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(newEngine(pinger{err: errors.New("down")}), "/api/health", "").Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	engine := newEngine(nil)

	assert.Equal(t, http.StatusUnauthorized, get(engine, "/api/v1/probe", "").Code)
	assert.Equal(t, http.StatusNoContent, get(engine, "/api/v1/probe", token(t, "farmer")).Code)
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	engine := newEngine(nil)

	assert.Equal(t, http.StatusForbidden, get(engine, "/api/v1/admin/probe", token(t, "insurer")).Code)
	assert.Equal(t, http.StatusNoContent, get(engine, "/api/v1/admin/probe", token(t, "super_admin")).Code)
}

func TestResponsesCarryRequestID(t *testing.T) {
	rec := get(newEngine(nil), "/api/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
