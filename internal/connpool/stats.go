package connpool

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Stats holds lock-free counters for a pool's lifetime activity, named
// after spec.md's stat struct (conn_count, timedout, queue_full_count,
// active_conn_count, total_time), in the same spirit as the teacher's
// DNSStats (atomic.Uint64 fields, a Snapshot method returning a plain
// value type for safe external reading).
type Stats struct {
	connCount       atomic.Uint64 // lifetime count of slots that reached StateConnected
	denied          atomic.Uint64
	closed          atomic.Uint64
	timedOut        atomic.Uint64
	errors          atomic.Uint64
	queueFullCount  atomic.Uint64 // bumped on CONNLIST_FULL (alloc or resize-down failure)
	activeConnCount atomic.Uint64 // running sum of used_slots observed at each new connection
	totalTimeMs     atomic.Uint64 // cumulative age (ms) of closed connections
	bytesIn         atomic.Uint64
	bytesOut        atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of a Pool's counters.
type StatsSnapshot struct {
	ConnCount       uint64
	Denied          uint64
	Closed          uint64
	TimedOut        uint64
	Errors          uint64
	QueueFullCount  uint64
	ActiveConnCount uint64
	TotalTimeMs     uint64
	BytesIn         uint64
	BytesOut        uint64
}

// Snapshot reads every counter into a plain value.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ConnCount:       s.connCount.Load(),
		Denied:          s.denied.Load(),
		Closed:          s.closed.Load(),
		TimedOut:        s.timedOut.Load(),
		Errors:          s.errors.Load(),
		QueueFullCount:  s.queueFullCount.Load(),
		ActiveConnCount: s.activeConnCount.Load(),
		TotalTimeMs:     s.totalTimeMs.Load(),
		BytesIn:         s.bytesIn.Load(),
		BytesOut:        s.bytesOut.Load(),
	}
}

// MeanOccupancy returns active_conn_count / conn_count, the mean number of
// slots in use at accept time across the pool's lifetime, or 0 before any
// connection has ever been accepted.
func (s StatsSnapshot) MeanOccupancy() float64 {
	if s.ConnCount == 0 {
		return 0
	}
	return float64(s.ActiveConnCount) / float64(s.ConnCount)
}

// PrintStat writes one human-readable line per counter to w, in the spirit
// of the original's print_stat dump.
func (p *Pool) PrintStat(w io.Writer) {
	snap := p.Stats()
	fmt.Fprintf(w, "pool=%s live=%d/%d\n", p.name, p.live, p.capacity)
	fmt.Fprintf(w, "conn_count=%d\n", snap.ConnCount)
	fmt.Fprintf(w, "denied=%d\n", snap.Denied)
	fmt.Fprintf(w, "closed=%d\n", snap.Closed)
	fmt.Fprintf(w, "timedout=%d\n", snap.TimedOut)
	fmt.Fprintf(w, "errors=%d\n", snap.Errors)
	fmt.Fprintf(w, "queue_full_count=%d\n", snap.QueueFullCount)
	fmt.Fprintf(w, "active_conn_count=%d\n", snap.ActiveConnCount)
	fmt.Fprintf(w, "total_time=%dms\n", snap.TotalTimeMs)
	fmt.Fprintf(w, "mean_occupancy=%.3f\n", snap.MeanOccupancy())
	fmt.Fprintf(w, "bytes_in=%d\n", snap.BytesIn)
	fmt.Fprintf(w, "bytes_out=%d\n", snap.BytesOut)
}
