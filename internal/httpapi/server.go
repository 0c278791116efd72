// Package httpapi exposes a small status surface for the sync daemon.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alis-tech/crm-invoice-sync/internal/worker"
)

// StatusSource provides the worker snapshot served by /status.
type StatusSource interface {
	GetStatus() worker.Status
}

// Server serves /healthz and /status for the daemon.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	source     StatusSource
	logger     *zap.Logger
}

// NewServer builds the status server.
func NewServer(host string, port int, source StatusSource, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		source: source,
		logger: logger,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/status", s.handleStatus)
	return s
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.GetStatus())
}

// Start runs the server until ListenAndServe returns.
func (s *Server) Start() error {
	s.logger.Info("Status server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine (for testing).
func (s *Server) Router() *gin.Engine {
	return s.router
}
