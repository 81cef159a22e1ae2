package connpool

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jroosing/poolnetd/internal/netaddr"
)

// bindListener creates, binds, and (for TCP) listens on the address named
// by cfg. cfg.ListenPort of 0 asks the kernel for an ephemeral port (used
// by tests); the actual bound port is returned alongside the fd. It
// retries on EADDRINUSE up to retries times with delay between attempts,
// grounded on original_source's bind retry loop for a listener racing a
// just-exited previous instance of the same process off the same port
// (original_source/ap_net/conn_pool*/*.c's bind-with-backoff helper). A
// retries value of 0 attempts exactly once.
func bindListener(cfg Config, retries int, delay time.Duration) (int, uint16, error) {
	host, err := netip.ParseAddr(cfg.Listen)
	if err != nil {
		return -1, 0, fmt.Errorf("connpool: parse listen address: %w", err)
	}

	domain := unix.AF_INET
	typ := unix.SOCK_STREAM
	if cfg.IPv6 {
		domain = unix.AF_INET6
	}
	if cfg.Protocol == ProtoUDP {
		typ = unix.SOCK_DGRAM
	}

	var lastErr error
	attempts := retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		fd, port, err := tryBind(domain, typ, host, cfg.ListenPort, cfg.Protocol)
		if err == nil {
			return fd, port, nil
		}
		lastErr = err
		if !errors.Is(err, unix.EADDRINUSE) {
			return -1, 0, err
		}
		if attempt < attempts-1 && delay > 0 {
			time.Sleep(delay)
		}
	}
	return -1, 0, fmt.Errorf("connpool: bind %s failed after %d attempts: %w", cfg.Listen, attempts, lastErr)
}

func tryBind(domain, typ int, host netip.Addr, port uint16, proto Protocol) (int, uint16, error) {
	fd, err := unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, 0, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("setsockopt(SO_REUSEADDR): %w", err)
	}

	var sa unix.Sockaddr
	if domain == unix.AF_INET6 {
		s := &unix.SockaddrInet6{Port: int(port)}
		s.Addr = host.As16()
		sa = s
	} else {
		s := &unix.SockaddrInet4{Port: int(port)}
		s.Addr = host.As4()
		sa = s
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, 0, err
	}

	if proto == ProtoTCP {
		if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
			unix.Close(fd)
			return -1, 0, fmt.Errorf("listen: %w", err)
		}
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("getsockname: %w", err)
	}
	actualPort, err := sockaddrPort(bound)
	if err != nil {
		unix.Close(fd)
		return -1, 0, err
	}

	return fd, actualPort, nil
}

func sockaddrPort(sa unix.Sockaddr) (uint16, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return uint16(a.Port), nil
	case *unix.SockaddrInet6:
		return uint16(a.Port), nil
	default:
		return 0, fmt.Errorf("connpool: unsupported sockaddr type %T", sa)
	}
}

// acceptTCP performs one non-blocking accept4 on the shared listener. It
// returns (-1, nil) when there is nothing to accept right now (EAGAIN),
// which is not an error.
func (p *Pool) acceptTCP() (int, netaddr.Endpoint, error) {
	fd, sa, err := unix.Accept4(p.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return -1, netaddr.Endpoint{}, nil
		}
		return -1, netaddr.Endpoint{}, err
	}
	ep, err := netaddr.FromSockaddr(sa)
	if err != nil {
		unix.Close(fd)
		return -1, netaddr.Endpoint{}, err
	}
	return fd, ep, nil
}

// recvAndRouteUDP consumes exactly one datagram off the shared listener
// socket (this is the UDP "pseudo-accept": a brand-new sender is detected
// and allocated a slot at the same moment its first datagram is consumed,
// rather than via a separate non-consuming peek) and appends its payload to
// the owning peer slot's receive buffer, allocating a new synthetic slot
// (via onAccepted) if this sender has not been seen before. Returns false
// once EAGAIN is hit (nothing left to drain this cycle).
func (p *Pool) recvAndRouteUDP() (bool, error) {
	buf := p.bufPool.get()
	defer p.bufPool.put(buf)

	n, _, _, sa, err := unix.Recvmsg(p.listenFD, buf, nil, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return false, nil
		}
		return false, err
	}
	ep, err := netaddr.FromSockaddr(sa)
	if err != nil {
		return true, err
	}

	idx := p.udpSlotForPeer(ep)
	if idx < 0 {
		p.onAccepted(-1, true, p.listenFD, ep)
		idx = p.udpSlotForPeer(ep)
		if idx < 0 {
			return true, nil // denied, or pool at capacity; datagram dropped
		}
	}

	s := &p.slots[idx]
	if s.appendData(buf[:n]) {
		p.stats.bytesIn.Add(uint64(n))
		p.dispatch(idx, SigDataIn)
	}
	return true, nil
}

// recvInto performs one non-blocking read on a TCP stream slot's own fd
// into its receive buffer, compacting first if the buffer has drifted past
// the two-thirds mark. Returns the number of bytes newly appended; 0 with
// a nil error means EAGAIN (nothing currently available). UDP peer slots
// never use this path; their data arrives via recvAndRouteUDP.
func (p *Pool) recvInto(idx int) (int, error) {
	s := &p.slots[idx]

	if s.needsCompaction() {
		s.compact()
	}
	if s.bufFill >= len(s.recvBuf) {
		return 0, fmt.Errorf("connpool: slot %d receive buffer full", idx)
	}

	n, err := unix.Read(s.fd, s.recvBuf[s.bufFill:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, errEOF
	}

	s.bufFill += n
	s.state |= StateIn
	return n, nil
}

// errEOF signals a clean peer-initiated close on a stream socket, distinct
// from StateError which marks an actual I/O failure.
var errEOF = errors.New("connpool: peer closed connection")

// drainSend writes as much of the slot's pending output as the socket will
// currently accept. It clears StateOut once the buffer empties.
func (p *Pool) drainSend(idx int) error {
	s := &p.slots[idx]
	for len(s.sendBuf) > 0 {
		if s.udpPeer {
			// A datagram is sent whole or not at all; there is no
			// partial-write case to loop on.
			err := unix.Sendto(s.udpFD, s.sendBuf, 0, s.peer.SockaddrPtr())
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
					return nil
				}
				return err
			}
			p.stats.bytesOut.Add(uint64(len(s.sendBuf)))
			s.sendBuf = s.sendBuf[:0]
			break
		}

		n, err := unix.Write(s.fd, s.sendBuf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return nil
			}
			return err
		}
		p.stats.bytesOut.Add(uint64(n))
		s.sendBuf = s.sendBuf[n:]
	}
	s.state &^= StateOut
	return nil
}

// Send queues b for output on idx and attempts an immediate opportunistic
// write. Remaining bytes, if any, wait for the next CAN_SEND readiness. A
// hard write error marks the slot StateError and begins its orderly close.
func (p *Pool) Send(idx int, b []byte) error {
	if idx < 0 || idx >= len(p.slots) || !p.slots[idx].state.Has(StateAllocated) {
		return fmt.Errorf("connpool: invalid slot index %d", idx)
	}
	p.slots[idx].queueSend(b)
	if err := p.drainSend(idx); err != nil {
		p.slots[idx].state |= StateError
		p.RequestClose(idx)
		return err
	}
	return nil
}

// minSendChunk is the floor send_chunk must not drop below before SendAsync
// gives up on a blocked peer (spec.md §4.5 Send (asynchronous)).
const minSendChunk = 10

// SendAsync writes b to idx in a single synchronous retry loop, rather than
// queuing the remainder for a later CAN_SEND event the way Send does. It
// starts by attempting the whole buffer in one syscall; each time the
// kernel reports EAGAIN/EWOULDBLOCK it halves the attempted chunk size and
// retries, giving up — without closing the connection, since a slow peer
// is not a dead one — once the chunk would drop below 10 bytes. A hard
// write error (EPIPE) or a zero-byte return closes the connection, exactly
// like the synchronous path. Grounded on
// original_source/ap_net/conn_pool_send.c's send_async loop.
func (p *Pool) SendAsync(idx int, b []byte) (int, error) {
	if idx < 0 || idx >= len(p.slots) || !p.slots[idx].state.Has(StateAllocated) {
		return 0, fmt.Errorf("connpool: invalid slot index %d", idx)
	}
	s := &p.slots[idx]

	remaining := b
	chunk := len(remaining)
	sent := 0

	for len(remaining) > 0 {
		if chunk > len(remaining) {
			chunk = len(remaining)
		}

		var n int
		var err error
		if s.udpPeer {
			err = unix.Sendto(s.udpFD, remaining[:chunk], 0, s.peer.SockaddrPtr())
			if err == nil {
				n = chunk
			}
		} else {
			n, err = unix.Write(s.fd, remaining[:chunk])
		}

		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				chunk /= 2
				if chunk < minSendChunk {
					return sent, nil
				}
				continue
			}
			s.state |= StateError
			p.RequestClose(idx)
			return sent, err
		}
		if n == 0 {
			p.RequestClose(idx)
			return sent, errEOF
		}

		p.stats.bytesOut.Add(uint64(n))
		sent += n
		remaining = remaining[n:]
		chunk = len(remaining)
	}
	return sent, nil
}

// Recv returns the unread portion of idx's receive buffer without
// consuming it. Call Consume after processing to advance past n bytes.
func (p *Pool) Recv(idx int) []byte {
	if idx < 0 || idx >= len(p.slots) {
		return nil
	}
	s := &p.slots[idx]
	return s.recvBuf[s.bufPos:s.bufFill]
}

// Consume advances idx's read position by n bytes.
func (p *Pool) Consume(idx int, n int) {
	if idx < 0 || idx >= len(p.slots) {
		return
	}
	p.slots[idx].consume(n)
}
