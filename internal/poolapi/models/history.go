package models

import "time"

// SnapshotResponse is one persisted stats row for a pool.
type SnapshotResponse struct {
	TakenAt         time.Time `json:"taken_at"`
	ConnCount       uint64    `json:"conn_count"`
	TimedOut        uint64    `json:"timed_out"`
	QueueFullCount  uint64    `json:"queue_full_count"`
	ActiveConnCount uint64    `json:"active_conn_count"`
	TotalTimeMs     uint64    `json:"total_time_ms"`
	UsedSlots       int       `json:"used_slots"`
	MaxConnections  int       `json:"max_connections"`
}

// HistoryResponse is the payload for GET /pools/{pool}/history.
type HistoryResponse struct {
	Pool      string             `json:"pool"`
	Snapshots []SnapshotResponse `json:"snapshots"`
}
