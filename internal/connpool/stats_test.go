package connpool_test

import (
	"testing"

	"github.com/jroosing/poolnetd/internal/connpool"
	"github.com/jroosing/poolnetd/internal/netaddr"
	"github.com/stretchr/testify/require"
)

func TestStatsConnCountAndMeanOccupancy(t *testing.T) {
	server := newTCPServerPool(t, func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
		return connpool.VerdictOK
	})

	ep, err := netaddr.ParseText(netaddr.FamilyV4, "127.0.0.1", server.ListenPort())
	require.NoError(t, err)

	clients := make([]*connpool.Pool, 0, 3)
	for i := 0; i < 3; i++ {
		c := newTCPClientPool(t, nil)
		_, err := c.Connect(ep)
		require.NoError(t, err)
		clients = append(clients, c)
	}

	pumpUntil(t, server, func() bool { return server.Live() == 3 })

	snap := server.Stats()
	require.Equal(t, uint64(3), snap.ConnCount)
	require.Equal(t, uint64(6), snap.ActiveConnCount) // running sum 1+2+3
	require.InDelta(t, 2.0, snap.MeanOccupancy(), 0.0001)
}

func TestStatsQueueFullCountOnCapacityExceeded(t *testing.T) {
	server, err := connpool.New(connpool.Config{
		Name:     "capacity-test",
		Protocol: connpool.ProtoTCP,
		Capacity: 1,
		Listen:   "127.0.0.1",
		Handler: func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
			return connpool.VerdictOK
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	ep, err := netaddr.ParseText(netaddr.FamilyV4, "127.0.0.1", server.ListenPort())
	require.NoError(t, err)

	first := newTCPClientPool(t, nil)
	_, err = first.Connect(ep)
	require.NoError(t, err)
	pumpUntil(t, server, func() bool { return server.Live() == 1 })

	second := newTCPClientPool(t, nil)
	_, err = second.Connect(ep)
	require.NoError(t, err)

	// The raw TCP connection lands in the kernel accept backlog, but the
	// pool has no free slot: onAccepted's allocSlot call fails and bumps
	// QueueFullCount instead of ever reaching SigAccepted.
	pumpUntil(t, server, func() bool { return server.Stats().QueueFullCount >= 1 })
	require.Equal(t, 1, server.Live(), "the denied second connection must not occupy a slot")
}
