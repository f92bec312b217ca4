// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/rfq-workflow/internal/application/service"
	"github.com/garyjia/rfq-workflow/internal/application/workflow"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// QuotationExporter renders and reads back quotation documents
type QuotationExporter interface {
	Export(ctx context.Context, rfqID int64) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RequestTimeout:  20 * time.Second,
	}
}

// Services groups the application services the HTTP layer calls
type Services struct {
	RFQs          service.RFQService
	Engine        workflow.WorkflowEngine
	Notifications service.NotificationService
	Quotations    QuotationExporter
	Catalog       *domainwf.Catalog
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	if s.config.RequestTimeout > 0 {
		s.router.Use(s.timeoutMiddleware(s.config.RequestTimeout))
	}
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// timeoutMiddleware bounds the request context. Handlers see the deadline
// through c.Request.Context().
func (s *Server) timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.services, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		api.GET("/states", handlers.ListStates)

		api.POST("/rfqs", handlers.CreateRFQ)
		api.GET("/rfqs", handlers.ListRFQs)
		api.GET("/rfqs/:id", handlers.GetRFQ)
		api.GET("/rfqs/:id/audit", handlers.GetAuditTrail)
		api.GET("/rfqs/:id/assignments", handlers.GetAssignments)
		api.GET("/rfqs/:id/revisions", handlers.ListRevisions)
		api.GET("/rfqs/:id/notifications", handlers.ListNotifications)
		api.GET("/rfqs/:id/transitions", handlers.PermittedTransitions)
		api.POST("/rfqs/:id/transitions/:trigger", handlers.FireTransition)
		api.POST("/rfqs/:id/quotation", handlers.ExportQuotation)
		api.GET("/rfqs/:id/quotation", handlers.DownloadQuotation)

		api.PUT("/skus/:id/costs", handlers.UpdateSKUCosts)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

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

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
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
