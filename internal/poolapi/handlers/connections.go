package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/poolnetd/internal/poolapi/models"
)

// Connections godoc
// @Summary List live connections
// @Description Returns every occupied slot for the named pool
// @Tags connections
// @Produce json
// @Param pool path string true "pool name"
// @Success 200 {object} models.ConnectionsResponse
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /pools/{pool}/connections [get]
func (h *Handler) Connections(c *gin.Context) {
	name := c.Param("pool")
	p, ok := h.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "unknown pool: " + name})
		return
	}

	conns := p.Connections()
	out := make([]models.ConnectionResponse, 0, len(conns))
	for _, ci := range conns {
		out = append(out, models.ConnectionResponse{
			Index:    ci.Index,
			FD:       ci.FD,
			Local:    ci.Local.String(),
			Remote:   ci.Remote.String(),
			State:    ci.State.String(),
			AgeMs:    ci.Age.Milliseconds(),
			Buffered: ci.Buffered,
		})
	}

	c.JSON(http.StatusOK, models.ConnectionsResponse{Pool: name, Connections: out})
}

// CloseConnection godoc
// @Summary Close a connection
// @Description Requests orderly shutdown of one slot in the named pool
// @Tags connections
// @Produce json
// @Param pool path string true "pool name"
// @Param index path int true "slot index"
// @Success 200 {object} models.StatusResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /pools/{pool}/connections/{index}/close [post]
func (h *Handler) CloseConnection(c *gin.Context) {
	name := c.Param("pool")
	p, ok := h.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "unknown pool: " + name})
		return
	}

	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid index"})
		return
	}

	if err := p.CloseConnection(idx); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "closing"})
}
