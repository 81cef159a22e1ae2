package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jroosing/poolnetd/internal/connpool"
	"github.com/jroosing/poolnetd/internal/poolapi/models"
)

// Health godoc
// @Summary Health check
// @Description Returns server health status
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Server statistics
// @Description Returns runtime statistics including system CPU/memory usage and per-pool connection stats
// @Tags system
// @Produce json
// @Success 200 {object} models.ServerStatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := models.MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.FreeMB = float64(vmStat.Available) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := models.CPUStats{NumCPU: runtime.NumCPU()}
	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuStats.UsedPercent = cpuPercent[0]
		cpuStats.IdlePercent = 100.0 - cpuPercent[0]
	}

	pools := make([]models.PoolStatsResponse, 0, len(h.registry.Names()))
	for _, name := range h.registry.Names() {
		p, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		snap := p.Stats()
		protocol := "tcp"
		if p.Protocol() == connpool.ProtoUDP {
			protocol = "udp"
		}
		pools = append(pools, models.PoolStatsResponse{
			Name:            name,
			Protocol:        protocol,
			Capacity:        p.Capacity(),
			UsedSlots:       p.Live(),
			ConnCount:       snap.ConnCount,
			TimedOut:        snap.TimedOut,
			QueueFullCount:  snap.QueueFullCount,
			ActiveConnCount: snap.ActiveConnCount,
			TotalTimeMs:     snap.TotalTimeMs,
			MeanOccupancy:   snap.MeanOccupancy(),
			BytesIn:         snap.BytesIn,
			BytesOut:        snap.BytesOut,
		})
	}

	resp := models.ServerStatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		CPU:           cpuStats,
		Memory:        memStats,
		Pools:         pools,
	}

	c.JSON(http.StatusOK, resp)
}
