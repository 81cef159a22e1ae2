// Package handlers implements the REST API endpoint handlers for poolnetd.
//
// @title poolnetd Management API
// @version 1.0
// @description REST API for inspecting poolnetd connection pools: health, statistics, live connections, and history.
//
// @contact.name poolnetd
// @contact.url https://github.com/jroosing/poolnetd
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"log/slog"
	"time"

	"github.com/jroosing/poolnetd/internal/poolapi/registry"
)

// Handler contains dependencies for API handlers.
type Handler struct {
	registry  *registry.Registry
	logger    *slog.Logger
	startTime time.Time
}

// New creates a new Handler over reg.
func New(reg *registry.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		registry:  reg,
		logger:    logger,
		startTime: time.Now(),
	}
}
