package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pdq-signal-server/internal/domain"
	"github.com/pdq-signal-server/internal/metrics"
	"github.com/pdq-signal-server/internal/middleware"
	"github.com/pdq-signal-server/internal/service"
)

// Analyzer serves dashboards of the current analysis run
type Analyzer interface {
	SourceName() string
	Dashboard(ctx context.Context) (*domain.Dashboard, error)
	Section(ctx context.Context, name string) (interface{}, error)
	Refresh(ctx context.Context) (*service.Analysis, error)
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	analyzer      Analyzer
	metrics       *metrics.Metrics
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance. m may be nil, in which case
// /metrics is not served.
func NewServer(configManager domain.ConfigManager, analyzer Analyzer, m *metrics.Metrics, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger.Out))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	if m != nil {
		router.Use(middleware.Metrics(m))
	}
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	server := &Server{
		configManager: configManager,
		analyzer:      analyzer,
		metrics:       m,
		logger:        logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
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
	case err, ok := <-errCh:
		if ok {
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
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	cfg := s.configManager.GetConfig()
	if s.metrics != nil && cfg.Server.EnableMetrics {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		v1.Use(middleware.RateLimit(middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)))
	}
	{
		v1.GET("/dashboard", s.handleDashboard)
		v1.GET("/sections/:name", s.handleSection)
		v1.POST("/refresh", s.handleRefresh)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   s.configManager.GetConfig().MCP.ServerVersion,
		"source":    s.analyzer.SourceName(),
	})
}

func (s *Server) handleDashboard(c *gin.Context) {
	d, err := s.analyzer.Dashboard(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleSection(c *gin.Context) {
	section, err := s.analyzer.Section(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, section)
}

func (s *Server) handleRefresh(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := s.analyzer.Refresh(ctx); err != nil {
		s.respondError(c, err)
		return
	}
	d, err := s.analyzer.Dashboard(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// respondError maps err onto a status code and a PDQError body
func (s *Server) respondError(c *gin.Context, err error) {
	status, code, message := classify(err)
	correlationID := c.GetString(middleware.CorrelationIDKey)

	entry := s.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"path":           c.FullPath(),
		"status":         status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(status, domain.NewPDQError(code, message, err.Error(), correlationID))
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.ErrNotFoundCode, "Not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.ErrSourceError, "Analysis timed out"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, domain.ErrSourceError, "Record source unavailable"
	case errors.Is(err, domain.ErrSourceLoad):
		return http.StatusBadGateway, domain.ErrSourceError, "Failed to load records"
	default:
		return http.StatusInternalServerError, domain.ErrInternalServer, "Analysis failed"
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
