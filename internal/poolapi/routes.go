package poolapi

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/jroosing/poolnetd/internal/config"
	"github.com/jroosing/poolnetd/internal/poolapi/handlers"
	"github.com/jroosing/poolnetd/internal/poolapi/middleware"
)

// RegisterRoutes mounts the swagger UI and /api/v1 handler tree on r.
//
// Generated swagger docs (the internal/poolapi/docs package that
// `swag init -d internal/poolapi -g handlers/base.go` produces) are not
// checked in, and this file does not import them, so the UI route serves
// an empty spec.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")

	if cfg != nil && cfg.API.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)

	api.GET("/pools/:pool/connections", h.Connections)
	api.POST("/pools/:pool/connections/:index/close", h.CloseConnection)

	api.GET("/pools/:pool/history", h.History)
}
