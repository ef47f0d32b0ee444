// Package server exposes the job manager over a small JSON HTTP API so a
// long-running tubescribe instance can accept work from other tools on the
// machine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tubescribe/tubescribe/internal/history"
	"github.com/tubescribe/tubescribe/internal/jobs"
	"github.com/tubescribe/tubescribe/internal/pipeline"
)

// Config carries the listen address and the request template applied to
// every submitted job. Per-job overrides from the API body are layered on
// top of Defaults.
type Config struct {
	Addr     string
	ModelDir string
	Defaults pipeline.Request
}

// Server wires the gin engine, the job manager, and the history store.
type Server struct {
	cfg     Config
	manager *jobs.Manager
	history *history.Store
	logger  *zap.Logger

	engine   *gin.Engine
	httpSrv  *http.Server
	listener net.Listener
}

// New builds the router with middleware and all API routes registered. The
// history store may be nil, in which case the history endpoints report the
// feature as disabled.
func New(cfg Config, manager *jobs.Manager, hist *history.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8977"
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(recovery(logger), requestID(), requestLogger(logger))

	s := &Server{
		cfg:     cfg,
		manager: manager,
		history: hist,
		logger:  logger,
		engine:  engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.health)

	api := s.engine.Group("/api")
	api.POST("/jobs", s.submitJob)
	api.GET("/jobs", s.listJobs)
	api.GET("/jobs/:id", s.getJob)
	api.GET("/jobs/:id/events", s.jobEvents)
	api.GET("/jobs/:id/transcript", s.jobTranscript)
	api.GET("/jobs/:id/audio", s.jobAudio)
	api.POST("/jobs/:id/cancel", s.cancelJob)
	api.DELETE("/jobs/:id", s.deleteJob)

	api.GET("/models", s.listModels)

	api.GET("/history", s.listHistory)
	api.DELETE("/history", s.clearHistory)
}

// Handler returns the underlying http.Handler. Tests drive it directly
// without binding a port.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listen address and begins serving in the background. It
// returns once the listener is bound so callers know the port is ready.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if serveErr := s.httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(serveErr))
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once Start has succeeded, otherwise the
// configured one. Useful when listening on port 0.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Shutdown stops accepting connections and drains in-flight requests.
// Background jobs are left to the caller, which may cancel or await them.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
