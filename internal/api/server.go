package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/logging"
	"github.com/toothsense-analysis-server/internal/metrics"
	"github.com/toothsense-analysis-server/internal/middleware"
	"github.com/toothsense-analysis-server/internal/service"
	"github.com/toothsense-analysis-server/pkg/external"
)

const version = "1.0.0"

// HealthReporter reports collaborator health for /health.
type HealthReporter interface {
	Health() []external.ServiceHealth
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	orchestrator  *service.Orchestrator
	health        HealthReporter
	recorder      *metrics.Recorder
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
	upgrader      websocket.Upgrader
}

// NewServer creates a new HTTP server instance. health and recorder may be
// nil.
func NewServer(configManager domain.ConfigManager, orchestrator *service.Orchestrator, health HealthReporter, recorder *metrics.Recorder, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()
	if logger == nil {
		logger = logging.Discard()
	}

	// Set Gin mode based on environment
	if gin.Mode() != gin.TestMode {
		if cfg.Logging.Level == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())

	server := &Server{
		configManager: configManager,
		orchestrator:  orchestrator,
		health:        health,
		recorder:      recorder,
		logger:        logger,
		router:        router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	server.setupRoutes(cfg)

	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(cfg *domain.Config) {
	s.router.GET("/health", s.handleHealth)

	if cfg.Metrics.Enabled && s.recorder != nil {
		s.router.GET(cfg.Metrics.Path, gin.WrapH(s.recorder.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		analyze := v1.Group("", middleware.RateLimit(cfg.Inference.RateLimit, 0), middleware.RequestTimeout(cfg.Server.RequestTimeout))
		analyze.POST("/analyze", s.handleAnalyze)

		v1.GET("/analyze/stream", s.handleAnalyzeStream)
		v1.POST("/report", s.handleReport)
		v1.GET("/describe", s.handleDescribe)
	}
}
