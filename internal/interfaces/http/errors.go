package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// Error codes returned in the response envelope
const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeConflict     = "concurrency_conflict"
	CodePrecondition = "precondition_failed"
	CodeInactive     = "inactive_resource"
	CodeTimeout      = "timeout"
	CodeDependency   = "dependency_failure"
	CodeInternal     = "internal_error"
)

// statusFor maps a workflow error to an HTTP status and envelope code.
// Timeouts are checked first because a timed out dependency wraps both.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domainwf.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, domainwf.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, domainwf.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domainwf.ErrConcurrencyConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, domainwf.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, CodePrecondition
	case errors.Is(err, domainwf.ErrInactiveResource):
		return http.StatusLocked, CodeInactive
	case errors.Is(err, domainwf.ErrDependencyFailure):
		return http.StatusBadGateway, CodeDependency
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError logs the failure and writes the error envelope
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	status, code := statusFor(err)
	h.logger.Error(op+" failed", "path", c.Request.URL.Path, "status", status, "error", err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.JSON(status, Response{
		Success: false,
		Code:    code,
		Error:   msg,
	})
}

// badRequest writes a 400 envelope for malformed input
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Code:    CodeValidation,
		Error:   msg,
	})
}
