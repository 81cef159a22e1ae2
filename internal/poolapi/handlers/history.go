package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/poolnetd/internal/poolapi/models"
)

// History godoc
// @Summary Pool stats history
// @Description Returns recent persisted stat snapshots for the named pool. Empty if storage is disabled.
// @Tags history
// @Produce json
// @Param pool path string true "pool name"
// @Param limit query int false "max rows (default 50)"
// @Success 200 {object} models.HistoryResponse
// @Security ApiKeyAuth
// @Router /pools/{pool}/history [get]
func (h *Handler) History(c *gin.Context) {
	name := c.Param("pool")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	store := h.registry.Store()
	if store == nil {
		c.JSON(http.StatusOK, models.HistoryResponse{Pool: name})
		return
	}

	rows, err := store.RecentSnapshots(c.Request.Context(), name, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	snaps := make([]models.SnapshotResponse, 0, len(rows))
	for _, r := range rows {
		snaps = append(snaps, models.SnapshotResponse{
			TakenAt:         r.TakenAt,
			ConnCount:       r.ConnCount,
			TimedOut:        r.TimedOut,
			QueueFullCount:  r.QueueFullCount,
			ActiveConnCount: r.ActiveConnCount,
			TotalTimeMs:     r.TotalTimeMs,
			UsedSlots:       r.UsedSlots,
			MaxConnections:  r.MaxConnections,
		})
	}

	c.JSON(http.StatusOK, models.HistoryResponse{Pool: name, Snapshots: snaps})
}
