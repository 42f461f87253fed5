package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	apihttp "github.com/personium/personium-engine/internal/api/http"
	"github.com/personium/personium-engine/internal/api/middleware"
	"github.com/personium/personium-engine/internal/domain/engine"
	"github.com/personium/personium-engine/internal/infrastructure/config"
	"github.com/personium/personium-engine/internal/infrastructure/logging"
	"github.com/personium/personium-engine/internal/infrastructure/monitoring"
	"github.com/personium/personium-engine/internal/infrastructure/tracing"
	"github.com/personium/personium-engine/internal/providers/bridge"
	"github.com/personium/personium-engine/internal/providers/extension"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	http       *http.Server
	engine     *engine.Engine
	extensions *extension.Loader
	tracer     *tracing.Tracer
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return newServer(cfg, logger, prometheus.NewRegistry())
}

func newServer(cfg *config.Config, logger *logging.Logger, reg *prometheus.Registry) (*Server, error) {
	logger.Info("Initializing engine server",
		zap.String("addr", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)),
		zap.Duration("script_timeout", cfg.Engine.ScriptTimeout),
		zap.String("route_strategy", cfg.Source.RouteStrategy),
	)

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)
	tracer := tracing.New("personium-engine", logger.Logger)

	eng, err := engine.New(cfg.Engine, logger, metrics)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	// Outbound calls into the unit
	signer, err := bridge.NewSigner(cfg.Engine.TokenSecretKey, cfg.Engine.TokenTTL)
	if err != nil {
		logger.Error("Bridge disabled, token signer unavailable", zap.Error(err))
	} else {
		eng.WithHostFactory(bridge.NewFactory(bridge.NewClient(cfg.Bridge, metrics), signer))
	}

	// Extensions
	loader := extension.NewLoader(cfg.Extension, logger, metrics).WithNatives(extension.NewHtml())
	if err := loader.Load(); err != nil {
		logger.Warn("Failed to load extensions", zap.String("dir", cfg.Extension.Dir), zap.Error(err))
	}
	eng.WithExtensions(loader)

	handlers, err := apihttp.NewHandlers(eng, cfg.Source, logger)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create handlers: %w", err)
	}
	handlers.WithStats(loader)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery(logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSFromConfig(cfg.CORS)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitFromConfig(cfg.RateLimit)))
	}

	handlers.Register(router, cfg.Logging.Development)
	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))

	logger.Info("Server initialized successfully", zap.Int("extensions", loader.ExtensionCount()))

	return &Server{
		router: router,
		http: &http.Server{
			Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		engine:     eng,
		extensions: loader,
		tracer:     tracer,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run starts the HTTP server and blocks until it stops. A graceful
// shutdown is not an error.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server, waiting for in-flight scripts
// up to the configured shutdown timeout.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
		err = fmt.Errorf("failed to shut down http server: %w", err)
	}
	s.tracer.Close()

	// Sync logger before exit
	_ = s.logger.Sync()

	return err
}
