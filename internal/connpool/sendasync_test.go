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

func TestSendAsyncDeliversSmallPayload(t *testing.T) {
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

	n, err := server.SendAsync(srvIdx, []byte("hello-async"))
	require.NoError(t, err)
	require.Equal(t, len("hello-async"), n)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, client.PollOnce(20*time.Millisecond))
		if len(client.Recv(clientIdx)) > 0 {
			require.Equal(t, "hello-async", string(client.Recv(clientIdx)))
			return
		}
	}
	t.Fatal("timed out waiting for SendAsync payload to arrive")
}

// TestSendAsyncGivesUpWithoutClosingOnFullWindow exercises spec.md §8's
// boundary behaviour: once the attempted chunk size would drop below 10
// bytes against a peer that refuses to drain its receive window,
// SendAsync must stop retrying and report what it actually sent without
// tearing down the connection.
func TestSendAsyncGivesUpWithoutClosingOnFullWindow(t *testing.T) {
	rec := &signalRecorder{}
	var srvIdx int
	server := newTCPServerPool(t, func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
		rec.record(sig)
		if sig == connpool.SigAccepted {
			srvIdx = idx
		}
		return connpool.VerdictOK
	})

	// A plain net.Conn peer that accepts the TCP handshake but never
	// reads anything: its receive window fills, then the server's own
	// send buffer fills behind it.
	peer, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", server.ListenPort()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	pumpUntil(t, server, func() bool { return rec.has(connpool.SigAccepted) })

	huge := make([]byte, 16<<20)
	n, err := server.SendAsync(srvIdx, huge)
	require.NoError(t, err, "a blocked peer must not surface as a send error")
	require.Less(t, n, len(huge), "an unconsumed peer window must eventually stop accepting bytes")
	require.True(t, server.ConnectionIsAlive(srvIdx), "a slow peer must not cause the connection to close")
}
