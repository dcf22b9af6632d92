package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusByKind(t *testing.T) {
	cases := map[*Error]int{
		NotFound("x"):            http.StatusNotFound,
		Validation("x"):          http.StatusBadRequest,
		Conflict("x"):            http.StatusConflict,
		Forbidden("x"):           http.StatusForbidden,
		Internal("x"):            http.StatusInternalServerError,
		New(Kind("teapot"), "x"): http.StatusBadRequest,
	}
	for err, want := range cases {
		assert.Equal(t, want, err.HTTPStatus(), string(err.Kind))
	}
}

func TestLookupThroughWrapChain(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := fmt.Errorf("apply action: %w", Wrap(KindInternal, "update claim failed", cause).WithOp("claims.apply").WithCode(CodeInvalidTransition))

	assert.True(t, Is(err, KindInternal))
	assert.True(t, HasCode(err, CodeInvalidTransition))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "apply action: claims.apply: update claim failed", err.Error())

	assert.Equal(t, Kind(""), GetKind(cause))
	assert.Empty(t, GetCode(nil))
}
