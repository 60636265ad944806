// Package response writes JSON bodies and maps domain errors to HTTP status codes.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	identityservice "commerce-auth/backend/internal/identity/service"
	sessionservice "commerce-auth/backend/internal/session/service"
)

// Error codes returned in the "code" field.
const (
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidRefresh     = "invalid_refresh_token"
	CodeSessionNotFound    = "session_not_found"
	CodeSessionRevoked     = "session_revoked"
	CodeSessionExpired     = "session_expired"
	CodeForbidden          = "forbidden"
	CodeInternal           = "internal_error"
)

// Body is the error envelope.
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK sends a 200 response.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// List sends a 200 response with items wrapped in {"data": [...]}.
func List[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Body{Code: code, Message: message})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context, message string) {
	abort(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// SessionError maps a session check failure on an authenticated route to 401, so clients
// treat a revoked or expired session like a logged-out one.
func SessionError(c *gin.Context, err error, logger *zap.Logger) {
	switch {
	case errors.Is(err, sessionservice.ErrSessionRevoked):
		abort(c, http.StatusUnauthorized, CodeSessionRevoked, "session revoked")
	case errors.Is(err, sessionservice.ErrSessionExpired):
		abort(c, http.StatusUnauthorized, CodeSessionExpired, "session expired")
	case errors.Is(err, sessionservice.ErrSessionNotFound), errors.Is(err, sessionservice.ErrForbidden):
		abort(c, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid authorization")
	default:
		Error(c, err, logger)
	}
}

// Error maps err to a status code and writes the error envelope. Unknown errors are logged
// and answered with a generic 500.
func Error(c *gin.Context, err error, logger *zap.Logger) {
	switch {
	case errors.Is(err, identityservice.ErrInvalidCredentials):
		abort(c, http.StatusUnauthorized, CodeInvalidCredentials, "invalid credentials")
	case errors.Is(err, sessionservice.ErrInvalidRefreshToken):
		abort(c, http.StatusUnauthorized, CodeInvalidRefresh, "invalid refresh token")
	case errors.Is(err, sessionservice.ErrSessionRevoked):
		abort(c, http.StatusUnauthorized, CodeSessionRevoked, "session revoked")
	case errors.Is(err, sessionservice.ErrSessionExpired):
		abort(c, http.StatusUnauthorized, CodeSessionExpired, "session expired")
	case errors.Is(err, sessionservice.ErrSessionNotFound):
		abort(c, http.StatusNotFound, CodeSessionNotFound, "session not found")
	case errors.Is(err, sessionservice.ErrForbidden):
		abort(c, http.StatusForbidden, CodeForbidden, "session belongs to another customer")
	default:
		if logger != nil {
			logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		}
		abort(c, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
