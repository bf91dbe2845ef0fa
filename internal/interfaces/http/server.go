// Package http provides the HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to machine and
// service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openscience/moderation/internal/application/machines"
	"github.com/openscience/moderation/internal/application/service"
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

// Machines bundles the workflow machines the server exposes
type Machines struct {
	Reviews          *machines.ReviewsMachine
	NodeRequests     *machines.NodeRequestsMachine
	PreprintRequests *machines.PreprintRequestsMachine
	Sanctions        *machines.SanctionsMachine
	Collections      *machines.CollectionsMachine
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	machines   Machines
	queues     *service.QueueService
	exports    *service.ExportService
	logger     Logger
}

// NewServer creates a new HTTP server with the given machines and services
func NewServer(
	config ServerConfig,
	m Machines,
	queues *service.QueueService,
	exports *service.ExportService,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		machines: m,
		queues:   queues,
		exports:  exports,
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
}

// loggingMiddleware creates a logging middleware
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
	handlers := NewHandlers(s.machines, s.queues, s.exports, s.logger)

	// Health check
	s.router.GET("/health", handlers.HealthCheck)

	// API routes
	api := s.router.Group("/api")
	{
		// Trigger endpoints: one per machine family
		api.POST("/preprints/:id/actions", handlers.FirePreprintTrigger)
		api.POST("/node-requests/:id/actions", handlers.FireNodeRequestTrigger)
		api.POST("/preprint-requests/:id/actions", handlers.FirePreprintRequestTrigger)
		api.POST("/collection-submissions/:id/actions", handlers.FireCollectionTrigger)

		// Sanctions
		api.POST("/sanctions", handlers.InitiateSanction)
		api.POST("/sanctions/:id/approve", handlers.ApproveSanction)
		api.POST("/sanctions/:id/reject", handlers.RejectSanction)
		api.POST("/sanctions/:id/actions", handlers.FireSanctionTrigger)
		api.POST("/registrations/:id/withdraw", handlers.ForceWithdrawRegistration)

		// Moderator queues and audit trails
		api.GET("/providers/:id/preprints", handlers.ListProviderPreprints)
		api.GET("/providers/:id/registrations", handlers.ListProviderRegistrations)
		api.GET("/providers/:id/collection-submissions", handlers.ListProviderCollectionSubmissions)
		api.GET("/providers/:id/actions", handlers.ListProviderActions)
		api.GET("/providers/:id/actions/export", handlers.ExportProviderActions)
		api.GET("/targets/:kind/:id/actions", handlers.ListTargetActions)
	}
}

// Start starts the HTTP server
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
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
