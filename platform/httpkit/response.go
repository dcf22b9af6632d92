package httpkit

import (
	"net/http"

	"claims_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

const jsonContentType = "application/json; charset=utf-8"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes payload with status.
func JSON(c *gin.Context, status int, payload any) { c.JSON(status, payload) }

// OK writes payload with 200.
func OK(c *gin.Context, payload any) { c.JSON(http.StatusOK, payload) }

// RawJSON writes an already-encoded body. Idempotent replays use it so the
// client gets the stored bytes back unchanged.
func RawJSON(c *gin.Context, status int, body []byte) {
	c.Data(status, jsonContentType, body)
}

// Error writes a request-level failure such as a bind error. Field errors
// from the validator go in details and mark the response VALIDATION_FAILED.
func Error(c *gin.Context, status int, message string, details any) {
	resp := ErrorResponse{Error: message, Details: details}
	if details != nil {
		resp.Code = apperr.CodeValidationFailed
	}
	c.JSON(status, resp)
}

// HandleError renders err and reports whether there was one. An *apperr.Error
// anywhere in the chain picks the status and exposes its message and code.
// Anything else is a 500 with a generic message; the cause only reaches the
// request log through c.Error.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	appErr, ok := apperr.As(err)
	if !ok {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "INTERNAL"})
		return true
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, ErrorResponse{Error: appErr.Message, Code: appErr.Code, Details: appErr.Details})
	return true
}
