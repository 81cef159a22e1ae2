package poolstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jroosing/poolnetd/internal/connpool"
)

// Snapshot is one persisted row of a pool's Stats at a point in time.
type Snapshot struct {
	PoolName        string
	TakenAt         time.Time
	ConnCount       uint64
	TimedOut        uint64
	QueueFullCount  uint64
	ActiveConnCount uint64
	TotalTimeMs     uint64
	UsedSlots       int
	MaxConnections  int
}

// RecordSnapshot persists one Stats snapshot for name, tagged with the
// pool's current occupancy.
func (db *DB) RecordSnapshot(ctx context.Context, name string, s connpool.StatsSnapshot, usedSlots, maxConnections int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		INSERT INTO stat_snapshots
			(pool_name, conn_count, timed_out, queue_full_count,
			 active_conn_count, total_time_ms, used_slots, max_connections)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.ExecContext(ctx, query,
		name, s.ConnCount, s.TimedOut, s.QueueFullCount,
		s.ActiveConnCount, s.TotalTimeMs, usedSlots, maxConnections)
	if err != nil {
		return fmt.Errorf("failed to record stat snapshot for %s: %w", name, err)
	}
	return nil
}

// RecentSnapshots returns up to limit snapshots for name, newest first.
func (db *DB) RecentSnapshots(ctx context.Context, name string, limit int) ([]Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	query := `
		SELECT pool_name, taken_at, conn_count, timed_out, queue_full_count,
		       active_conn_count, total_time_ms, used_slots, max_connections
		FROM stat_snapshots
		WHERE pool_name = ?
		ORDER BY taken_at DESC, id DESC
		LIMIT ?
	`
	rows, err := db.conn.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stat snapshots for %s: %w", name, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.PoolName, &s.TakenAt, &s.ConnCount, &s.TimedOut,
			&s.QueueFullCount, &s.ActiveConnCount, &s.TotalTimeMs,
			&s.UsedSlots, &s.MaxConnections); err != nil {
			return nil, fmt.Errorf("failed to scan stat snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stat snapshots: %w", err)
	}
	return out, nil
}

// RecordSignal appends one row to the signal dispatch audit trail.
func (db *DB) RecordSignal(ctx context.Context, name string, slotIndex, fd int, sig connpool.Signal, detail string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		INSERT INTO signal_log (pool_name, slot_index, fd, signal, detail)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := db.conn.ExecContext(ctx, query, name, slotIndex, fd, sig.String(), detail)
	if err != nil {
		return fmt.Errorf("failed to record signal for %s: %w", name, err)
	}
	return nil
}
