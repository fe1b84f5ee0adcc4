// Package http provides the HTTP adapter for the application layer. It is a
// thin translation layer: handlers parse and validate the request, call one
// application service, and shape the response.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/formdesk/flowengine/internal/application/service"
	"github.com/formdesk/flowengine/internal/engine/methodology"
	"github.com/formdesk/flowengine/internal/report"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config        ServerConfig
	httpServer    *http.Server
	router        *gin.Engine
	templates     service.TemplateService
	forms         service.FormService
	escalations   service.EscalationService
	methodologies *methodology.Registry
	exporter      *report.Exporter
	logger        Logger
}

// NewServer creates an HTTP server around the given services
func NewServer(
	config ServerConfig,
	templates service.TemplateService,
	forms service.FormService,
	escalations service.EscalationService,
	methodologies *methodology.Registry,
	exporter *report.Exporter,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:        config,
		router:        gin.New(),
		templates:     templates,
		forms:         forms,
		escalations:   escalations,
		methodologies: methodologies,
		exporter:      exporter,
		logger:        logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.templates, s.forms, s.escalations, s.methodologies, s.exporter, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		// Templates
		api.POST("/templates", handlers.CreateTemplate)
		api.GET("/templates", handlers.ListTemplates)
		api.GET("/templates/:id", handlers.GetTemplate)
		api.PUT("/templates/:id", handlers.UpdateTemplate)
		api.POST("/templates/:id/publish", handlers.PublishTemplate)
		api.POST("/templates/:id/methodology", handlers.ApplyMethodology)
		api.GET("/templates/:id/instances", handlers.ListInstances)
		api.GET("/templates/:id/export", handlers.ExportSubmissions)

		// Instances
		api.POST("/instances", handlers.CreateInstance)
		api.GET("/instances/:id", handlers.GetInstance)
		api.PUT("/instances/:id/draft", handlers.UpdateDraft)
		api.POST("/instances/:id/actions", handlers.ApplyAction)
		api.GET("/instances/:id/next-step", handlers.NextStep)
		api.GET("/instances/:id/history", handlers.ListHistory)

		// Methodologies
		api.GET("/methodologies/:methodology/requirements", handlers.GetMethodologyRequirements)

		// Escalations
		api.POST("/escalations/scan", handlers.ScanEscalations)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// server fails
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
