package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"price-catalog/internal/config"
	"price-catalog/internal/database"
	"price-catalog/internal/logger"
	custommiddleware "price-catalog/internal/middleware"
	"price-catalog/internal/repository"
	"price-catalog/internal/service"
	"price-catalog/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const loginRateLimitPrefix = "ratelimit:login"

// Dependencies are the collaborators the router is built from
type Dependencies struct {
	Catalog service.CatalogService
	Auth    service.AuthService
	// Redis is optional; without it login attempts are not limited
	Redis *redis.Client
}

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     database.Service
	redis  *redis.Client
}

// NewServer wires repository, services and handlers onto an http.Server
func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client) (*Server, error) {
	var catalog service.CatalogService
	catalog = service.NewCatalogService(repository.NewProductRepository(db.DB()))
	if redisClient != nil {
		catalog = service.NewCachedCatalogService(catalog, redisClient, cfg.Redis.CacheTTL, logger)
	}

	auth, err := NewAuthService(cfg.Auth)
	if err != nil {
		return nil, err
	}

	router := NewRouter(cfg, logger, Dependencies{
		Catalog: catalog,
		Auth:    auth,
		Redis:   redisClient,
	})

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
	}

	return server, nil
}

// NewAuthService picks the token issuer named by the auth config
func NewAuthService(cfg config.AuthConfig) (service.AuthService, error) {
	checker, err := service.NewBcryptChecker(cfg.AdminPassword)
	if err != nil {
		return nil, err
	}

	var issuer service.TokenIssuer
	switch cfg.TokenMode {
	case config.TokenModeStatic, "":
		issuer = service.NewStaticTokenIssuer(cfg.StaticToken)
	case config.TokenModeJWT:
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required when AUTH_TOKEN_MODE=%s", config.TokenModeJWT)
		}
		issuer = service.NewJWTTokenIssuer(cfg.JWTSecret)
	default:
		return nil, fmt.Errorf("unknown AUTH_TOKEN_MODE %q", cfg.TokenMode)
	}

	return service.NewAuthService(checker, issuer), nil
}

// NewRouter builds the chi router with the full middleware stack
func NewRouter(cfg *config.Config, log *zap.Logger, deps Dependencies) http.Handler {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(log))
	router.Use(custommiddleware.LoggingMiddleware(log))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := custommiddleware.NewMetrics(reg)

		router.Use(metrics.Middleware(logger.ServiceName, custommiddleware.RoutePatternOrPath))
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := deps.Catalog.Ready(ctx); err != nil {
			log.Warn("Readiness check failed", zap.Error(err))
			custommiddleware.RespondWithError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		custommiddleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	var gate func(http.Handler) http.Handler
	if cfg.Auth.RequireToken {
		gate = custommiddleware.TokenAuthMiddleware(deps.Auth, log)
	}

	var limiter func(http.Handler) http.Handler
	if deps.Redis != nil && cfg.Auth.LoginRateLimit > 0 {
		limiter = custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.Auth.LoginRateLimit,
			Window:            cfg.Auth.LoginRateWindow,
			KeyPrefix:         loginRateLimitPrefix,
		}, log)
	}

	transport.NewProductHandler(deps.Catalog, log).RegisterRoutes(router, gate)
	transport.NewAuthHandler(deps.Auth, log).RegisterRoutes(router, limiter)

	return router
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
