package connpool_test

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jroosing/poolnetd/internal/connpool"
	"github.com/jroosing/poolnetd/internal/netaddr"
	"github.com/stretchr/testify/require"
)

// TestCheckConnsIsANoOpWhenHealthy confirms CheckConns's narrow contract:
// a poll for errors only, dispatching nothing and disturbing no slot when
// there is nothing to report (spec.md §6 Pool::check_conns).
func TestCheckConnsIsANoOpWhenHealthy(t *testing.T) {
	rec := &signalRecorder{}
	var srvIdx int
	server := newTCPServerPool(t, func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
		rec.record(sig)
		if sig == connpool.SigAccepted {
			srvIdx = idx
		}
		return connpool.VerdictOK
	})

	client := newTCPClientPool(t, nil)
	ep, err := netaddr.ParseText(netaddr.FamilyV4, "127.0.0.1", server.ListenPort())
	require.NoError(t, err)
	clientIdx, err := client.Connect(ep)
	require.NoError(t, err)

	pumpUntil(t, server, func() bool { return rec.has(connpool.SigAccepted) })
	pumpUntil(t, client, func() bool { return client.State(clientIdx).Has(connpool.StateConnected) })

	rec.reset()
	require.NoError(t, server.CheckConns())
	require.False(t, rec.has(connpool.SigDataIn), "CheckConns must never dispatch data signals")
	require.False(t, rec.has(connpool.SigClosing), "a healthy slot must not be touched")
	require.True(t, server.ConnectionIsAlive(srvIdx))
}

// TestCheckConnsClosesSlotOnPeerReset drives an abrupt peer reset (RST, via
// SO_LINGER{on,0}) and confirms CheckConns — unlike PollOnce, with no data
// dispatch involved — still notices the resulting socket error and tears
// the slot down, grounded on
// original_source/ap_net/conn_pool_check_conns.c.
func TestCheckConnsClosesSlotOnPeerReset(t *testing.T) {
	rec := &signalRecorder{}
	var srvIdx int
	server := newTCPServerPool(t, func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
		rec.record(sig)
		if sig == connpool.SigAccepted {
			srvIdx = idx
		}
		return connpool.VerdictOK
	})

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", server.ListenPort()))
	require.NoError(t, err)
	pumpUntil(t, server, func() bool { return rec.has(connpool.SigAccepted) })

	tcpConn := conn.(*net.TCPConn)
	require.NoError(t, tcpConn.SetLinger(0))
	require.NoError(t, tcpConn.Close())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, server.CheckConns())
		if !server.ConnectionIsAlive(srvIdx) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("CheckConns never noticed the peer reset")
}
