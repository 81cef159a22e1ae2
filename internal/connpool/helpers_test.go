package connpool_test

import (
	"testing"
	"time"

	"github.com/jroosing/poolnetd/internal/connpool"
	"github.com/jroosing/poolnetd/internal/netaddr"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTCPClientPool(t *testing.T, handler connpool.Handler) *connpool.Pool {
	t.Helper()
	if handler == nil {
		handler = func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
			return connpool.VerdictOK
		}
	}
	p, err := connpool.New(connpool.Config{
		Name:     "test-client",
		Protocol: connpool.ProtoTCP,
		Capacity: 8,
		BufSize:  4096,
		Handler:  handler,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// openUDPClientSocket opens a plain blocking UDP socket with a short
// receive timeout, standing in for an external peer talking to a pool's
// UDP pseudo-accept listener.
func openUDPClientSocket(t *testing.T) int {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })

	tv := unix.Timeval{Sec: 2}
	require.NoError(t, unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv))
	return fd
}

func sendUDP(t *testing.T, fd int, to netaddr.Endpoint, data []byte) {
	t.Helper()
	require.NoError(t, unix.Sendto(fd, data, 0, to.SockaddrPtr()))
}

func recvUDP(t *testing.T, fd int) []byte {
	t.Helper()
	buf := make([]byte, 2048)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err == nil {
			return buf[:n]
		}
	}
	t.Fatal("timed out waiting for UDP reply")
	return nil
}
