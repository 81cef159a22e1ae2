package poolstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jroosing/poolnetd/internal/connpool"
	"github.com/jroosing/poolnetd/internal/poolstore"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *poolstore.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poolstore.db")
	db, err := poolstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenRunsMigrationsAndHealthSucceeds(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Health())
}

func TestRecordAndReadSnapshots(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	snap := connpool.StatsSnapshot{
		ConnCount:       5,
		TimedOut:        1,
		QueueFullCount:  0,
		ActiveConnCount: 10,
		TotalTimeMs:     4200,
	}
	require.NoError(t, db.RecordSnapshot(ctx, "echo-tcp", snap, 3, 8))
	require.NoError(t, db.RecordSnapshot(ctx, "echo-tcp", snap, 4, 8))

	rows, err := db.RecentSnapshots(ctx, "echo-tcp", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "echo-tcp", rows[0].PoolName)
	require.Equal(t, uint64(5), rows[0].ConnCount)
	require.Equal(t, 4, rows[0].UsedSlots) // most recent first
}

func TestRecentSnapshotsRespectsLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordSnapshot(ctx, "p", connpool.StatsSnapshot{}, i, 8))
	}

	rows, err := db.RecentSnapshots(ctx, "p", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestRecordSignalAppendsAuditRow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.RecordSignal(ctx, "echo-tcp", 3, 17, connpool.SigAccepted, "127.0.0.1:5555"))
}

func TestRecentSnapshotsEmptyForUnknownPool(t *testing.T) {
	db := openTestDB(t)
	rows, err := db.RecentSnapshots(context.Background(), "nope", 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}
