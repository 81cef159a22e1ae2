package connpool

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/jroosing/poolnetd/internal/netaddr"
	"github.com/jroosing/poolnetd/internal/poolerr"
)

// Connect allocates a slot and starts a non-blocking outbound TCP connect
// to peer. The connection is not yet usable when Connect returns; SIG_
// CONNECTED fires once the non-blocking connect completes, observed as
// writability on the new fd during a later PollOnce. Connect is only valid
// on TCP pools; UDP has no connection handshake to await (use Send against
// a pseudo-accepted slot instead).
func (p *Pool) Connect(peer netaddr.Endpoint) (int, error) {
	poolerr.Clear()

	if p.protocol != ProtoTCP {
		poolerr.Set("pool.Connect", poolerr.BadProto, "Connect is TCP-only")
		return -1, fmt.Errorf("connpool: Connect is only valid on TCP pools")
	}

	domain := unix.AF_INET
	if peer.IsV6() {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		poolerr.Set("pool.Connect", poolerr.System, err.Error())
		return -1, err
	}

	idx, allocErr := p.allocSlot()
	if allocErr != nil {
		unix.Close(fd)
		return -1, allocErr
	}

	s := &p.slots[idx]
	s.fd = fd
	s.peer = peer

	err = unix.Connect(fd, peer.SockaddrPtr())
	if err != nil && err != unix.EINPROGRESS {
		poolerr.Set("pool.Connect", poolerr.System, err.Error())
		p.destroySlot(idx, true)
		return -1, err
	}

	// getsockname fills the local Endpoint (spec.md §4.5 Connect): the
	// kernel assigns the local address/ephemeral port as soon as connect()
	// is issued, even while the handshake itself is still EINPROGRESS.
	if sa, sErr := unix.Getsockname(fd); sErr == nil {
		if ep, cErr := netaddr.FromSockaddr(sa); cErr == nil {
			s.local = ep
		}
	}

	if err := p.notifier.Add(fd); err != nil {
		poolerr.Set("pool.Connect", poolerr.System, err.Error())
		p.destroySlot(idx, true)
		return -1, err
	}

	return idx, nil
}

// pollConnectCompletion is invoked by serviceSlot the first time a
// connecting (not yet StateConnected) slot reports writability, which is
// how a non-blocking connect() signals completion. It checks SO_ERROR to
// distinguish success from a failed connection attempt.
func (p *Pool) pollConnectCompletion(idx int) {
	s := &p.slots[idx]
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || errno != 0 {
		s.state |= StateError
		p.RequestClose(idx)
		return
	}
	s.state |= StateConnected
	p.stats.connCount.Add(1)
	p.stats.activeConnCount.Add(uint64(p.live))
	p.dispatch(idx, SigConnected)
}
