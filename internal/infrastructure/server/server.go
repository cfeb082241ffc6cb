package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/sitepack/internal/api/http"
	"github.com/GriffinCanCode/sitepack/internal/api/middleware"
	"github.com/GriffinCanCode/sitepack/internal/api/ws"
	"github.com/GriffinCanCode/sitepack/internal/domain/auth"
	"github.com/GriffinCanCode/sitepack/internal/domain/mirror"
	"github.com/GriffinCanCode/sitepack/internal/infrastructure/config"
	"github.com/GriffinCanCode/sitepack/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sitepack/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sitepack/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/sitepack/internal/providers/archive"
	"github.com/GriffinCanCode/sitepack/internal/providers/crawler"
	"github.com/GriffinCanCode/sitepack/internal/providers/postprocess"
)

// sessionPruneInterval is how often expired sessions are dropped
const sessionPruneInterval = 5 * time.Minute

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	mirror     *mirror.Service
	auth       *auth.Service
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer

	stop      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing sitepack server",
		zap.String("port", cfg.Server.Port),
		zap.String("work_dir", cfg.Mirror.WorkDir),
		zap.String("policy", cfg.Mirror.Policy),
		zap.String("cloak_mode", cfg.Cloak.Mode),
		zap.String("delivery", cfg.Archive.Delivery),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("sitepack", logger.Named("trace").Logger)

	mirrorService, err := newMirrorService(cfg, logger, metrics, tracer)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	var authService *auth.Service
	if cfg.Auth.Enabled {
		authService, err = auth.NewServiceFromFile(cfg.Auth.UsersFile, cfg.Auth.SessionTTL)
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to load users: %w", err)
		}
		logger.Info("Authentication enabled",
			zap.String("users_file", cfg.Auth.UsersFile),
			zap.Duration("session_ttl", cfg.Auth.SessionTTL),
		)
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(middleware.Recovery(logger.Logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.RequestLogger(logger.Named("http").Logger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// A nil *auth.Service must stay a nil interface
	var authenticator apihttp.Authenticator
	routes := apihttp.Routes{
		Metrics: metrics.Handler(),
		JobFeed: ws.NewHandler(mirrorService, logger.Named("ws").Logger).HandleConnection,
	}
	if authService != nil {
		authenticator = authService
		routes.RequireSession = middleware.RequireSession(authService)
	}

	handlers := apihttp.NewHandlers(mirrorService, authenticator, logger.Named("api").Logger)
	apihttp.RegisterRoutes(router, handlers, routes)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		mirror:  mirrorService,
		auth:    authService,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		tracer:  tracer,
		stop:    make(chan struct{}),
	}

	if authService != nil {
		go s.pruneSessions()
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func newMirrorService(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics, tracer *tracing.Tracer) (*mirror.Service, error) {
	selectors, err := crawler.ParseSelectors(cfg.Mirror.Selectors)
	if err != nil {
		return nil, err
	}

	client := crawler.NewClient(crawler.ClientConfig{
		Timeout:           cfg.Fetch.Timeout,
		Retries:           cfg.Fetch.Retries,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		UserAgent:         cfg.Mirror.UserAgent,
	}, logger.Named("fetch").Logger, metrics)

	c, err := crawler.New(crawler.Options{
		Policy:            cfg.Mirror.Policy,
		MaxDepth:          cfg.Mirror.MaxDepth,
		Selectors:         selectors,
		Exclude:           cfg.Mirror.Exclude,
		Parallelism:       cfg.Mirror.Parallelism,
		UserAgent:         cfg.Mirror.UserAgent,
		RequestTimeout:    cfg.Fetch.Timeout,
		IgnoreAssetErrors: cfg.Mirror.IgnoreAssetErrors,
	}, client, logger.Named("crawler").Logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create crawler: %w", err)
	}

	processor, err := postprocess.New(postprocess.Cloak{
		Mode:   cfg.Cloak.Mode,
		Agents: cfg.Cloak.Agents,
	}, logger.Named("postprocess").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create post-processor: %w", err)
	}

	packager, err := archive.New(cfg.Archive.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create packager: %w", err)
	}

	svc, err := mirror.NewService(mirror.OptionsFromConfig(cfg), c, processor, packager, logger.Named("mirror").Logger)
	if err != nil {
		return nil, err
	}
	return svc.WithMetrics(metrics).WithTracer(tracer), nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until it stops. A graceful
// shutdown is not an error.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight downloads until
// ctx ends, then releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Graceful shutdown incomplete", zap.Error(err))
	}
	s.Close()
	return err
}

// Close releases background resources. It is safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.tracer.Close()
		s.logger.Close()
	})
}

func (s *Server) pruneSessions() {
	ticker := time.NewTicker(sessionPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.auth.Prune(); n > 0 {
				s.logger.Debug("Pruned expired sessions", zap.Int("count", n))
			}
		case <-s.stop:
			return
		}
	}
}
