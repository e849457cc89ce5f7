package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailops/triaged/pkg/llm"
	"github.com/mailops/triaged/pkg/models"
	"github.com/mailops/triaged/pkg/retry"
	"github.com/mailops/triaged/pkg/validation"
)

// Error codes returned in the "error" field of error bodies.
const (
	errInvalidRequest   = "invalid_request"
	errValidationFailed = "validation_failed"
	errRetryExhausted   = "retry_exhausted"
	errLLMConnection    = "llm_connection_failed"
	errLLMTimeout       = "llm_timeout"
	errModelMissing     = "model_not_available"
	errNotFound         = "not_found"
	errTaskFailed       = "task_failed"
	errInternal         = "internal_error"
)

// errorBody builds the uniform error envelope shared by every error
// response.
func errorBody(code, message string) gin.H {
	return gin.H{
		"error":     code,
		"message":   message,
		"timestamp": models.NowISO(),
	}
}

// badRequest rejects the request with 400 and an optional details list.
func badRequest(c *gin.Context, message string, details ...string) {
	body := errorBody(errInvalidRequest, message)
	if len(details) > 0 {
		body["details"] = details
	}
	c.JSON(http.StatusBadRequest, body)
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, errorBody(errNotFound, message))
}

func internalError(c *gin.Context, err error) {
	slog.Error("Request failed", "error", err)
	c.JSON(http.StatusInternalServerError, errorBody(errInternal, "An unexpected error occurred"))
}

// writeTriageError maps a pipeline error onto its HTTP status. Exhaustion
// is checked before validation failures because the exhausted error wraps
// the last validation failure of the ladder.
func (s *Server) writeTriageError(c *gin.Context, err error) {
	var exhausted *retry.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		body := errorBody(errRetryExhausted, "Unable to process request after multiple retry attempts")
		body["request_uid"] = exhausted.Request.Email.UID
		body["attempts"] = exhausted.Metadata.TotalAttempts
		c.JSON(http.StatusServiceUnavailable, body)
	case validation.IsFailure(err):
		body := errorBody(errValidationFailed, err.Error())
		if details := validation.FailureDetails(err); details != nil {
			body["details"] = details
		}
		c.JSON(http.StatusUnprocessableEntity, body)
	case llm.IsTimeout(err):
		c.JSON(http.StatusGatewayTimeout, errorBody(errLLMTimeout, "LLM inference server request timed out"))
	case llm.IsConnection(err):
		c.JSON(http.StatusBadGateway, errorBody(errLLMConnection, "Unable to connect to LLM inference server"))
	default:
		internalError(c, err)
	}
}
