// Package poolapi provides the REST management API for poolnetd. It exposes
// endpoints for health checks, pool statistics, live connection listing, and
// (when storage is enabled) historical snapshots via a Gin-based HTTP
// server.
package poolapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/poolnetd/internal/config"
	"github.com/jroosing/poolnetd/internal/poolapi/handlers"
	"github.com/jroosing/poolnetd/internal/poolapi/middleware"
	"github.com/jroosing/poolnetd/internal/poolapi/registry"
)

// Server is the management REST API server.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds a Server wired to reg. Callers register pools on reg (and
// optionally a poolstore.DB) before or after calling New; the registry is
// read on every request, not snapshotted at construction time.
func New(cfg *config.Config, logger *slog.Logger, reg *registry.Registry) *Server {
	if cfg == nil {
		panic("poolapi.New: cfg is nil")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(reg, logger)
	RegisterRoutes(engine, h, cfg)

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, httpServer: httpServer}
}

// Addr returns the server's bound address.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Engine returns the underlying gin.Engine, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenAndServe blocks serving the API until the listener errors or closes.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
