package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"claims_backend/internal/aitasks"
	"claims_backend/platform/apperr"
	"claims_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOperator struct {
	failed    []aitasks.Task
	gotLimit  int
	retryErr  error
	retriedID uuid.UUID
}

func (f *fakeOperator) GetFailedTasks(_ context.Context, limit int) ([]aitasks.Task, error) {
	f.gotLimit = limit
	return f.failed, nil
}

func (f *fakeOperator) RetryTask(_ context.Context, id uuid.UUID) (aitasks.Task, error) {
	f.retriedID = id
	if f.retryErr != nil {
		return aitasks.Task{}, f.retryErr
	}
	return aitasks.Task{ID: id, Status: aitasks.StatusPending}, nil
}

func newRouter(op *fakeOperator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(op, validator.New())
	r.GET("/failed", h.ListFailed)
	r.POST("/:id/retry", h.Retry)
	return r
}

func TestListFailedPassesLimit(t *testing.T) {
	op := &fakeOperator{failed: []aitasks.Task{{ID: uuid.New(), Status: aitasks.StatusFailed, RetryCount: 3}}}
	w := httptest.NewRecorder()
	newRouter(op).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/failed?limit=10", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, op.gotLimit)
	var body ListFailedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
}

func TestListFailedRejectsOversizedLimit(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(&fakeOperator{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/failed?limit=501", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFailedEmptyIsArray(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(&fakeOperator{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/failed", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"total":0}`, w.Body.String())
}

func TestRetryAccepted(t *testing.T) {
	op := &fakeOperator{}
	id := uuid.New()
	w := httptest.NewRecorder()
	newRouter(op).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/"+id.String()+"/retry", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, id, op.retriedID)
}

func TestRetryOfNonFailedTaskConflicts(t *testing.T) {
	op := &fakeOperator{retryErr: apperr.Conflict("only failed tasks can be retried").WithCode(apperr.CodeInvalidTransition)}
	w := httptest.NewRecorder()
	newRouter(op).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/"+uuid.NewString()+"/retry", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), apperr.CodeInvalidTransition)
}

func TestRetryInvalidID(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(&fakeOperator{}).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/not-a-uuid/retry", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
