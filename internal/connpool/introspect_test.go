package connpool_test

import (
	"testing"

	"github.com/jroosing/poolnetd/internal/connpool"
	"github.com/jroosing/poolnetd/internal/netaddr"
	"github.com/stretchr/testify/require"
)

func TestConnectionsReportsOccupiedSlots(t *testing.T) {
	server := newTCPServerPool(t, func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
		return connpool.VerdictOK
	})

	ep, err := netaddr.ParseText(netaddr.FamilyV4, "127.0.0.1", server.ListenPort())
	require.NoError(t, err)

	client := newTCPClientPool(t, nil)
	_, err = client.Connect(ep)
	require.NoError(t, err)
	pumpUntil(t, server, func() bool { return server.Live() == 1 })

	conns := server.Connections()
	require.Len(t, conns, 1)
	require.True(t, conns[0].State.Has(connpool.StateConnected))
	require.Equal(t, server.LocalEndpoint(), conns[0].Local)
	require.GreaterOrEqual(t, conns[0].FD, 0)
}

func TestCloseConnectionRejectsBadIndex(t *testing.T) {
	server := newTCPServerPool(t, func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
		return connpool.VerdictOK
	})

	require.Error(t, server.CloseConnection(-1))
	require.Error(t, server.CloseConnection(999))
	require.Error(t, server.CloseConnection(0)) // capacity-8 pool, nothing connected yet
}

func TestCloseConnectionClosesLiveSlot(t *testing.T) {
	server := newTCPServerPool(t, func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
		return connpool.VerdictOK
	})

	ep, err := netaddr.ParseText(netaddr.FamilyV4, "127.0.0.1", server.ListenPort())
	require.NoError(t, err)

	client := newTCPClientPool(t, nil)
	_, err = client.Connect(ep)
	require.NoError(t, err)
	pumpUntil(t, server, func() bool { return server.Live() == 1 })

	conns := server.Connections()
	require.Len(t, conns, 1)
	require.NoError(t, server.CloseConnection(conns[0].Index))
	pumpUntil(t, server, func() bool { return server.Live() == 0 })
}
