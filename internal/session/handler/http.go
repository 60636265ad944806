// Package handler exposes a customer's own sessions over HTTP.
package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"commerce-auth/backend/internal/server/middleware"
	"commerce-auth/backend/internal/server/response"
	"commerce-auth/backend/internal/session/domain"
)

// Service is the session management surface offered to customers.
type Service interface {
	ListSessions(ctx context.Context, customerID string) ([]*domain.Session, error)
	RevokeSession(ctx context.Context, customerID, sessionID string) error
	RevokeOtherSessions(ctx context.Context, customerID, currentSessionID string) (int64, error)
	RevokeAllSessions(ctx context.Context, customerID string) (int64, error)
}

// Handler serves /customers/me/sessions.
type Handler struct {
	svc    Service
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler returns a Handler over svc.
func NewHandler(svc Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Register mounts the routes on rg. auth must authenticate a customer.
func (h *Handler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	g := rg.Group("/customers/me/sessions", auth)
	g.GET("", h.list)
	g.DELETE("/:id", h.revoke)
	g.POST("/revoke-others", h.revokeOthers)
	g.POST("/revoke-all", h.revokeAll)
}

func (h *Handler) list(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	sessions, err := h.svc.ListSessions(c.Request.Context(), id.SubjectID)
	if err != nil {
		response.Error(c, err, h.logger)
		return
	}
	now := h.now()
	views := make([]View, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, NewView(s, id.SessionID, now))
	}
	response.List(c, views)
}

func (h *Handler) revoke(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	if err := h.svc.RevokeSession(c.Request.Context(), id.SubjectID, c.Param("id")); err != nil {
		response.Error(c, err, h.logger)
		return
	}
	response.NoContent(c)
}

type revokedResponse struct {
	Revoked int64 `json:"revoked"`
}

func (h *Handler) revokeOthers(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	n, err := h.svc.RevokeOtherSessions(c.Request.Context(), id.SubjectID, id.SessionID)
	if err != nil {
		response.Error(c, err, h.logger)
		return
	}
	response.OK(c, revokedResponse{Revoked: n})
}

func (h *Handler) revokeAll(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	n, err := h.svc.RevokeAllSessions(c.Request.Context(), id.SubjectID)
	if err != nil {
		response.Error(c, err, h.logger)
		return
	}
	response.OK(c, revokedResponse{Revoked: n})
}
