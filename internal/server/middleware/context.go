package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"commerce-auth/backend/internal/principal/domain"
)

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// Identity is the authenticated caller, taken from verified token claims.
type Identity struct {
	SubjectID string
	Username  string
	Type      domain.Type
	RoleID    *string
	SessionID string
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity set by RequirePrincipal and true, or false if the request is anonymous.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// CurrentIdentity is IdentityFrom for a gin request.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	return IdentityFrom(c.Request.Context())
}
