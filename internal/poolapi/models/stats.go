package models

import "time"

// CPUStats contains system CPU statistics.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats contains system memory statistics.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// PoolStatsResponse mirrors connpool.StatsSnapshot for one named pool, plus
// the occupancy figures the snapshot alone can't derive.
type PoolStatsResponse struct {
	Name            string  `json:"name"`
	Protocol        string  `json:"protocol"`
	Capacity        int     `json:"capacity"`
	UsedSlots       int     `json:"used_slots"`
	ConnCount       uint64  `json:"conn_count"`
	TimedOut        uint64  `json:"timed_out"`
	QueueFullCount  uint64  `json:"queue_full_count"`
	ActiveConnCount uint64  `json:"active_conn_count"`
	TotalTimeMs     uint64  `json:"total_time_ms"`
	MeanOccupancy   float64 `json:"mean_occupancy"`
	BytesIn         uint64  `json:"bytes_in"`
	BytesOut        uint64  `json:"bytes_out"`
}

// ServerStatsResponse contains server runtime statistics.
type ServerStatsResponse struct {
	Uptime        string              `json:"uptime"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	StartTime     time.Time           `json:"start_time"`
	CPU           CPUStats            `json:"cpu"`
	Memory        MemoryStats         `json:"memory"`
	Pools         []PoolStatsResponse `json:"pools"`
}
