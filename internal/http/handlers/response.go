// Package handlers implements the dashboard's HTTP endpoints: the push feed
// and its action records, moderator decisions, post history and the event
// stream.
//
// Every failure is written as an ErrorResponse with a stable code from
// errors.go. Service errors are mapped to status codes in one place
// (serviceError) so handlers stay transport-thin.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashback-dashboard/internal/http/middleware"
	"github.com/tbourn/flashback-dashboard/internal/services"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID for correlating client errors with server logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"action not found"`
}

// fail aborts with an ErrorResponse. 5xx results are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's NoRoute and NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// serviceError maps a services error to its HTTP result. Errors the
// services package does not name fall back to (status, code).
func serviceError(c *gin.Context, err error, status int, code string) {
	var de *services.DispatchError
	switch {
	case errors.Is(err, services.ErrAuth):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "push access token required")
	case errors.Is(err, services.ErrActionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "action not found")
	case errors.Is(err, services.ErrPushNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "push not found")
	case errors.Is(err, services.ErrInvalidDecision),
		errors.Is(err, services.ErrInvalidFilter),
		errors.Is(err, services.ErrEmptyAnswer):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		fail(c, http.StatusConflict, ErrCodeConflict, "action is not failed")
	case errors.Is(err, services.ErrDuplicateRecord):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrInvalidCursor):
		fail(c, http.StatusConflict, ErrCodeInvalidCursor, err.Error())
	case errors.As(err, &de):
		fail(c, http.StatusBadGateway, ErrCodeDispatchFailed, de.Error())
	default:
		fail(c, status, code, err.Error())
	}
}
