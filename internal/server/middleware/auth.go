package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"commerce-auth/backend/internal/principal/domain"
	"commerce-auth/backend/internal/security"
	"commerce-auth/backend/internal/server/response"
)

const bearerPrefix = "bearer "

// TokenVerifier verifies a bearer token for one principal type.
type TokenVerifier interface {
	VerifyFor(token string, want domain.Type) (*security.Claims, error)
}

// SessionChecker reports whether a customer session may still be used.
type SessionChecker interface {
	CheckActive(ctx context.Context, sessionID, customerID string) error
}

// RequirePrincipal authenticates the bearer token as principal type want and stores the
// caller's Identity in the request context. Customer tokens must carry a session id that
// is still active, so revoking a session cuts off its access tokens immediately.
func RequirePrincipal(tokens TokenVerifier, want domain.Type, sessions SessionChecker, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			response.Unauthorized(c, "missing or invalid authorization")
			return
		}
		claims, err := tokens.VerifyFor(token, want)
		if err != nil {
			logger.Debug("bearer token rejected", zap.String("want", string(want)), zap.Error(err))
			response.Unauthorized(c, tokenMessage(err))
			return
		}
		if want == domain.TypeCustomer {
			if claims.SessionID == "" {
				response.Unauthorized(c, "token is not bound to a session")
				return
			}
			if sessions != nil {
				if err := sessions.CheckActive(c.Request.Context(), claims.SessionID, claims.Subject); err != nil {
					response.SessionError(c, err, logger)
					return
				}
			}
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), Identity{
			SubjectID: claims.Subject,
			Username:  claims.Username,
			Type:      claims.Type,
			RoleID:    claims.RoleID,
			SessionID: claims.SessionID,
		}))
		c.Next()
	}
}

func tokenMessage(err error) string {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, security.ErrInvalidTokenType):
		return "token not valid for this route"
	default:
		return "missing or invalid authorization"
	}
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
