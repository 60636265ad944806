// Package app wires configuration, storage, telemetry and the HTTP and gRPC servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"commerce-auth/backend/internal/config"
	"commerce-auth/backend/internal/geo"
	healthhandler "commerce-auth/backend/internal/health/handler"
	identityservice "commerce-auth/backend/internal/identity/service"
	"commerce-auth/backend/internal/security"
	"commerce-auth/backend/internal/server"
	sessionservice "commerce-auth/backend/internal/session/service"
	"commerce-auth/backend/internal/telemetry"
	telemetryotel "commerce-auth/backend/internal/telemetry/otel"
	"commerce-auth/backend/internal/telemetry/producer"
)

const (
	serviceName         = "commerce-auth"
	shutdownTimeout     = 10 * time.Second
	healthWatchInterval = 10 * time.Second
)

// App holds all application dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	stores    *Stores
	providers *telemetryotel.Providers
	producer  producer.Producer
	geoDB     *geo.MaxMindSource
	redis     *redis.Client
	router    *gin.Engine
	grpc      *grpc.Server
	health    *health.Server
	checker   *healthhandler.Checker
	// exporting is true when events leave the process and shutdown must wait for async emits.
	exporting bool
}

// New initializes the application: stores, telemetry, geolocation, services, routes.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources(context.Background())
		}
	}()

	if a.stores, err = OpenStores(ctx, cfg, logger); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	a.providers, err = telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Insecure:    cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	a.providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(a.providers.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(a.providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SecurityEventsTopic, logger); kp != nil {
		a.producer = kp
		emitters = append(emitters, kp)
	}
	a.exporting = cfg.OTLPEndpoint != "" || a.producer != nil

	locator, err := a.openLocator(ctx)
	if err != nil {
		return nil, err
	}

	issuer, err := cfg.IssuerConfig()
	if err != nil {
		return nil, err
	}
	tokens, err := security.NewTokenProvider(issuer)
	if err != nil {
		return nil, err
	}
	store := sessionservice.NewStore(a.stores.Sessions, logger)
	auth, err := identityservice.NewAuthService(identityservice.Deps{
		Principals: a.stores.Principals,
		Sessions:   store,
		Hasher:     security.NewHasher(cfg.HashConfig()),
		Tokens:     tokens,
		Locator:    locator,
		Events:     telemetry.Fanout(emitters...),
		Metrics:    metrics,
		Logger:     logger,
		RefreshTTL: cfg.CustomerRefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	pingers := map[string]healthhandler.Pinger{"database": store}
	if a.redis != nil {
		rdb := a.redis
		pingers["redis"] = healthhandler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	a.checker = healthhandler.NewChecker(pingers, logger)

	if cfg.Development() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	a.router, err = server.NewRouter(server.RouterDeps{
		Auth:           auth,
		Tokens:         tokens,
		Sessions:       store,
		Health:         a.checker,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins(),
		TrustedProxies: cfg.TrustedProxyList(),
	})
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	a.health = healthhandler.NewGRPCServer()
	a.grpc = server.NewGRPCServer(a.health)
	return a, nil
}

// openLocator builds the geolocation chain: MaxMind, optionally behind the Redis cache.
// Without a database every lookup yields an empty location.
func (a *App) openLocator(ctx context.Context) (*geo.Locator, error) {
	if a.cfg.GeoIPDBPath == "" {
		a.logger.Info("GEOIP_DB_PATH not set; sessions are stored without location")
		return geo.NewLocator(nil, a.logger), nil
	}
	mm, err := geo.OpenMaxMind(a.cfg.GeoIPDBPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: %w", err)
	}
	a.geoDB = mm
	var source geo.Source = mm
	if a.cfg.RedisURL != "" {
		rdb, err := geo.ConnectRedis(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rdb
		source = geo.NewCachedSource(mm, rdb, a.cfg.GeoCacheTTL, a.logger)
	}
	return geo.NewLocator(source, a.logger), nil
}

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Run serves HTTP and gRPC until ctx is cancelled or a server fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	srv := &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go a.checker.Watch(watchCtx, a.health, healthWatchInterval)

	errc := make(chan error, 2)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		a.logger.Info("grpc server listening", zap.String("addr", a.cfg.GRPCAddr))
		if err := a.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errc <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-errc:
		a.logger.Error("server failed; shutting down", zap.Error(runErr))
	}

	stopWatch()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	a.grpc.GracefulStop()
	if a.exporting {
		// Async security events may still be in flight.
		time.Sleep(telemetry.ShutdownDrainDuration)
	}
	a.closeResources(shutdownCtx)
	return runErr
}

func (a *App) closeResources(ctx context.Context) {
	if a.providers != nil {
		if err := a.providers.Shutdown(ctx); err != nil {
			a.logger.Warn("otel shutdown", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.geoDB != nil {
		_ = a.geoDB.Close()
	}
	if err := a.stores.Close(); err != nil {
		a.logger.Warn("database close", zap.Error(err))
	}
}
