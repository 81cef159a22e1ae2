package connpool_test

import (
	"bytes"
	"testing"

	"github.com/jroosing/poolnetd/internal/connpool"
	"github.com/jroosing/poolnetd/internal/netaddr"
	"github.com/stretchr/testify/require"
)

func TestConnectionIsAliveTracksStateBitsOnly(t *testing.T) {
	server := newTCPServerPool(t, func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
		return connpool.VerdictOK
	})

	require.False(t, server.ConnectionIsAlive(0))
	require.False(t, server.ConnectionIsAlive(-1))
	require.False(t, server.ConnectionIsAlive(999))

	ep, err := netaddr.ParseText(netaddr.FamilyV4, "127.0.0.1", server.ListenPort())
	require.NoError(t, err)

	client := newTCPClientPool(t, nil)
	_, err = client.Connect(ep)
	require.NoError(t, err)
	pumpUntil(t, server, func() bool { return server.Live() == 1 })

	conns := server.Connections()
	require.Len(t, conns, 1)
	require.True(t, server.ConnectionIsAlive(conns[0].Index))
}

func TestPrintStatWritesOneLinePerCounter(t *testing.T) {
	server := newTCPServerPool(t, func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
		return connpool.VerdictOK
	})

	var buf bytes.Buffer
	server.PrintStat(&buf)

	out := buf.String()
	require.Contains(t, out, "conn_count=")
	require.Contains(t, out, "mean_occupancy=")
	require.Contains(t, out, "queue_full_count=")
}
