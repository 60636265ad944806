// Package server assembles the HTTP router and the gRPC server.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	healthhandler "commerce-auth/backend/internal/health/handler"
	identityhandler "commerce-auth/backend/internal/identity/handler"
	identityservice "commerce-auth/backend/internal/identity/service"
	"commerce-auth/backend/internal/principal/domain"
	"commerce-auth/backend/internal/server/middleware"
	sessionhandler "commerce-auth/backend/internal/session/handler"
)

// RouterDeps holds what the HTTP routes need.
type RouterDeps struct {
	Auth     *identityservice.AuthService
	Tokens   middleware.TokenVerifier
	Sessions middleware.SessionChecker
	Health   *healthhandler.Checker
	Logger   *zap.Logger
	// AllowedOrigins lists CORS origins; empty allows any origin without credentials.
	AllowedOrigins []string
	// TrustedProxies lists proxies whose X-Forwarded-For is honoured for the client IP.
	TrustedProxies []string
}

// NewRouter returns the gin engine serving the /v1 API and /healthz.
func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	if deps.Health != nil {
		r.GET("/healthz", deps.Health.HTTP)
	}

	v1 := r.Group("/v1")
	userAuth := middleware.RequirePrincipal(deps.Tokens, domain.TypeUser, nil, logger)
	customerAuth := middleware.RequirePrincipal(deps.Tokens, domain.TypeCustomer, deps.Sessions, logger)
	identityhandler.NewAuthHandler(deps.Auth, logger).Register(v1, userAuth, customerAuth)
	sessionhandler.NewHandler(deps.Auth, logger).Register(v1, customerAuth)
	return r, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
