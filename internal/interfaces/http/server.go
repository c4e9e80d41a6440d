// Package http provides the HTTP adapter over the workflow engine.
// It is a thin translation layer: identity arrives as an opaque,
// pre-verified user id header; all decisions live in internal/workflow.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimbusbank/approval-engine/internal/workflow"
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
	config      ServerConfig
	httpServer  *http.Server
	router      *gin.Engine
	engine      *workflow.Engine
	definitions *workflow.DefinitionStore
	logger      Logger
}

// NewServer creates a new HTTP server over the engine
func NewServer(
	config ServerConfig,
	engine *workflow.Engine,
	definitions *workflow.DefinitionStore,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config:      config,
		router:      router,
		engine:      engine,
		definitions: definitions,
		logger:      logger,
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

func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.engine, s.definitions, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		api.POST("/workflow-definitions", handlers.PublishDefinition)
		api.GET("/workflow-definitions", handlers.ListDefinitions)
		api.GET("/workflow-definitions/:id", handlers.GetDefinition)

		api.POST("/workflow-requests", handlers.CreateRequest)
		api.GET("/workflow-requests/:id", handlers.GetRequest)
		api.GET("/workflow-requests/:id/audit", handlers.GetAuditTrail)

		api.POST("/workflow/stages/:id/decision", handlers.RecordDecision)
		api.POST("/workflow/stages/bulk-decision", handlers.BulkDecision)
		api.GET("/workflow/awaiting-actions", handlers.AwaitingActions)
		api.GET("/workflow/my-engagements", handlers.MyEngagements)
		api.GET("/workflow/summary", handlers.Summary)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
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
