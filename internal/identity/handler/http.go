// Package handler exposes login, refresh and logout over HTTP.
package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"commerce-auth/backend/internal/device"
	"commerce-auth/backend/internal/identity/service"
	"commerce-auth/backend/internal/server/middleware"
	"commerce-auth/backend/internal/server/response"
	sessionhandler "commerce-auth/backend/internal/session/handler"
)

const tokenType = "Bearer"

// AuthHandler serves the /auth routes and /users/me.
type AuthHandler struct {
	svc    *service.AuthService
	logger *zap.Logger
}

// NewAuthHandler returns an AuthHandler over svc.
func NewAuthHandler(svc *service.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

// Register mounts the routes on rg. userAuth and customerAuth guard the routes that need a bearer token.
func (h *AuthHandler) Register(rg *gin.RouterGroup, userAuth, customerAuth gin.HandlerFunc) {
	rg.POST("/auth/users/login", h.loginUser)
	rg.POST("/auth/customers/login", h.loginCustomer)
	rg.POST("/auth/customers/refresh", h.refresh)
	rg.POST("/auth/customers/logout", customerAuth, h.logout)
	rg.GET("/users/me", userAuth, h.me)
}

type userLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type customerLoginRequest struct {
	Login      string `json:"login" binding:"required"`
	Password   string `json:"password" binding:"required"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

type refreshRequest struct {
	SessionID    string `json:"session_id" binding:"required"`
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type tokenResponse struct {
	AccessToken      string               `json:"access_token"`
	TokenType        string               `json:"token_type"`
	ExpiresAt        time.Time            `json:"expires_at"`
	RefreshToken     string               `json:"refresh_token,omitempty"`
	RefreshExpiresAt *time.Time           `json:"refresh_expires_at,omitempty"`
	Session          *sessionhandler.View `json:"session,omitempty"`
}

type meResponse struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Type     string  `json:"type"`
	RoleID   *string `json:"role_id,omitempty"`
}

func (h *AuthHandler) loginUser(c *gin.Context) {
	var req userLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "username and password are required")
		return
	}
	res, err := h.svc.LoginUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err, h.logger)
		return
	}
	response.OK(c, tokenResponse{AccessToken: res.AccessToken, TokenType: tokenType, ExpiresAt: res.ExpiresAt})
}

func (h *AuthHandler) loginCustomer(c *gin.Context) {
	var req customerLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "login and password are required")
		return
	}
	res, err := h.svc.LoginCustomer(c.Request.Context(),
		service.Credentials{Login: req.Login, Password: req.Password},
		device.Context{
			UserAgent:  c.Request.UserAgent(),
			IP:         c.ClientIP(),
			DeviceID:   req.DeviceID,
			DeviceName: req.DeviceName,
		})
	if err != nil {
		response.Error(c, err, h.logger)
		return
	}
	response.OK(c, customerTokens(res))
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "session_id and refresh_token are required")
		return
	}
	res, err := h.svc.RefreshCustomerToken(c.Request.Context(), req.SessionID, req.RefreshToken)
	if err != nil {
		response.Error(c, err, h.logger)
		return
	}
	response.OK(c, customerTokens(res))
}

func (h *AuthHandler) logout(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	if err := h.svc.Logout(c.Request.Context(), id.SubjectID, id.SessionID); err != nil {
		response.Error(c, err, h.logger)
		return
	}
	response.NoContent(c)
}

func (h *AuthHandler) me(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	response.OK(c, meResponse{ID: id.SubjectID, Username: id.Username, Type: string(id.Type), RoleID: id.RoleID})
}

func customerTokens(res *service.CustomerLoginResult) tokenResponse {
	view := sessionhandler.NewView(res.Session, res.Session.ID, time.Now().UTC())
	refreshExp := res.RefreshExpiresAt
	return tokenResponse{
		AccessToken:      res.AccessToken,
		TokenType:        tokenType,
		ExpiresAt:        res.ExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: &refreshExp,
		Session:          &view,
	}
}
