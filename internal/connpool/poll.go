package connpool

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jroosing/poolnetd/internal/netaddr"
	"github.com/jroosing/poolnetd/internal/notifier"
	"github.com/jroosing/poolnetd/internal/poolerr"
)

// PollOnce runs one iteration of the single-threaded poll loop: it waits up
// to timeout for readiness, services the listener (accept / UDP
// pseudo-accept) and every ready slot, sweeps expired slots, and advances
// any slot mid orderly-shutdown. Callers typically call this in a tight
// loop from a dedicated goroutine; the pool itself is not safe for
// concurrent use from more than one goroutine at a time.
func (p *Pool) PollOnce(timeout time.Duration) error {
	poolerr.Clear()

	events, err := p.notifier.Poll(timeout)
	if err != nil {
		poolerr.Set("pool.PollOnce", poolerr.System, err.Error())
		return err
	}

	for _, ev := range events {
		if ev.FD == p.listenFD {
			p.serviceListener()
			continue
		}
		idx := p.slotForFD(ev.FD)
		if idx < 0 {
			continue
		}
		p.serviceSlot(idx, ev)
	}

	p.drainPendingUDPSends()
	p.sweepExpirations()
	p.advanceShutdowns()

	return nil
}

func (p *Pool) slotForFD(fd int) int {
	for i := range p.slots {
		s := &p.slots[i]
		if s.state.Has(StateAllocated) && !s.udpPeer && s.fd == fd {
			return i
		}
	}
	return -1
}

// ByFD returns the index of the occupied slot whose own socket descriptor
// is fd, or -1 if none. A synthetic UDP peer slot has no descriptor of its
// own (all its traffic multiplexes over the listener's fd) and never
// matches. Part of spec.md §6's finder set (Pool::by_fd).
func (p *Pool) ByFD(fd int) int { return p.slotForFD(fd) }

func (p *Pool) udpSlotForPeer(peer netaddr.Endpoint) int {
	for i := range p.slots {
		s := &p.slots[i]
		if s.state.Has(StateAllocated) && s.udpPeer && s.peer == peer {
			return i
		}
	}
	return -1
}

func (p *Pool) serviceListener() {
	switch p.protocol {
	case ProtoTCP:
		for {
			fd, peer, err := p.acceptTCP()
			if err != nil {
				p.stats.errors.Add(1)
				return
			}
			if fd < 0 {
				return
			}
			p.onAccepted(fd, false, -1, peer)
		}
	case ProtoUDP:
		// Drain every datagram currently queued, routing each to its
		// owning peer slot (creating one via pseudo-accept on first
		// sight of a sender). Bounded so one noisy peer cannot starve
		// the rest of the poll cycle.
		for i := 0; i < 64; i++ {
			more, err := p.recvAndRouteUDP()
			if err != nil {
				p.stats.errors.Add(1)
				return
			}
			if !more {
				return
			}
		}
	}
}

// onAccepted allocates a slot for a newly accepted (or pseudo-accepted)
// connection, dispatches SIG_ACCEPTED, and tears the slot down immediately
// if the handler denies it.
func (p *Pool) onAccepted(fd int, udp bool, udpFD int, peer netaddr.Endpoint) {
	idx, err := p.allocSlot()
	if err != nil {
		if fd >= 0 {
			unix.Close(fd)
		}
		p.stats.denied.Add(1)
		return
	}

	s := &p.slots[idx]
	s.fd = fd
	s.udpPeer = udp
	s.udpFD = udpFD
	s.peer = peer
	s.local = p.LocalEndpoint()

	if !udp {
		if err := p.notifier.Add(fd); err != nil {
			p.destroySlot(idx, true)
			return
		}
	}

	if p.dispatch(idx, SigAccepted) == VerdictDeny {
		p.destroySlot(idx, true)
		p.stats.denied.Add(1)
		return
	}

	s.state |= StateConnected
	p.stats.connCount.Add(1)
	p.stats.activeConnCount.Add(uint64(p.live))
}

func (p *Pool) serviceSlot(idx int, ev notifier.Event) {
	s := &p.slots[idx]
	if !s.state.Has(StateAllocated) {
		return
	}

	if ev.Err || ev.Hangup {
		s.state |= StateError
		p.RequestClose(idx)
		return
	}

	if !s.udpPeer && !s.state.Has(StateConnected) {
		if ev.Writable {
			p.pollConnectCompletion(idx)
		}
		return
	}

	if ev.Readable {
		n, err := p.recvInto(idx)
		if err != nil {
			if err != errEOF {
				s.state |= StateError
				p.stats.errors.Add(1)
			}
			p.RequestClose(idx)
			return
		}
		if n > 0 {
			p.stats.bytesIn.Add(uint64(n))
			p.dispatch(idx, SigDataIn)
		}
	}

	if ev.Writable && s.state.Has(StateOut) {
		if err := p.drainSend(idx); err != nil {
			s.state |= StateError
			p.RequestClose(idx)
			return
		}
		if s.state.Has(StateOut) {
			p.dispatch(idx, SigCanSend)
		}
	}
}

// drainPendingUDPSends flushes any queued outbound bytes on synthetic
// per-peer UDP slots. These slots have no fd of their own for the notifier
// to report writability on (all traffic multiplexes over the listener
// socket), so a pending send is retried once per poll cycle instead of
// waiting on an EPOLLOUT event.
func (p *Pool) drainPendingUDPSends() {
	if p.protocol != ProtoUDP {
		return
	}
	for i := range p.slots {
		s := &p.slots[i]
		if !s.state.Has(StateAllocated) || !s.udpPeer || !s.state.Has(StateOut) {
			continue
		}
		if err := p.drainSend(i); err != nil {
			s.state |= StateError
			p.RequestClose(i)
			continue
		}
		if !s.state.Has(StateOut) {
			p.dispatch(i, SigCanSend)
		}
	}
}

func (p *Pool) sweepExpirations() {
	if p.ttl <= 0 {
		return
	}
	now := p.clock.Now()
	for i := range p.slots {
		s := &p.slots[i]
		if !s.state.Has(StateAllocated) || s.expireAt.IsZero() || s.state.Has(StateDisconnection) {
			continue
		}
		if now.After(s.expireAt) && !s.state.Has(StateExpired) {
			s.state |= StateExpired
			p.dispatch(i, SigTimedOut)
			p.stats.timedOut.Add(1)
			p.RequestClose(i)
		}
	}
}

// advanceShutdowns runs the second half of the two-phase orderly shutdown:
// any slot that had StateDisconnection set on a prior cycle is now
// actually closed.
func (p *Pool) advanceShutdowns() {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.state.Has(StateDisconnection) {
			continue
		}
		if s.disconnectArmed {
			p.destroySlot(i, false)
			continue
		}
		s.disconnectArmed = true
	}
}

// RequestClose begins orderly shutdown of idx: StateDisconnection is set
// now, SIG_CLOSING (and SIG_DATA_LEFT, if unread bytes remain) fire
// immediately, and the slot is torn down by a later PollOnce: the first
// PollOnce to finish after this call arms the teardown and the one after
// it performs it (so a call from a Handler inside PollOnce is torn down on
// the next PollOnce, a call between polls on the second one).
func (p *Pool) RequestClose(idx int) {
	if idx < 0 || idx >= len(p.slots) {
		return
	}
	s := &p.slots[idx]
	if !s.state.Has(StateAllocated) || s.state.Has(StateDisconnection) {
		return
	}
	s.state |= StateDisconnection
	p.dispatch(idx, SigClosing)
	if s.unreadLen() > 0 {
		p.dispatch(idx, SigDataLeft)
	}
}

// CheckConns drains the notifier once, with a zero timeout, and begins an
// orderly close (StateError plus RequestClose) of any slot reporting
// ERROR/HANGUP. If the listener reports ERROR/HANGUP it returns an error
// right away and leaves the listener open. It works without reading data or
// dispatching SigDataIn/SigCanSend for anything it sees readable or
// writable. It is a cheap way for an embedder to prune dead peers between
// full PollOnce cycles, grounded on
// original_source/ap_net/conn_pool_check_conns.c ("poll for errors only",
// spec.md §6 Pool::check_conns).
func (p *Pool) CheckConns() error {
	poolerr.Clear()

	events, err := p.notifier.Poll(0)
	if err != nil {
		poolerr.Set("pool.CheckConns", poolerr.System, err.Error())
		return err
	}

	for _, ev := range events {
		if !ev.Err && !ev.Hangup {
			continue
		}
		if ev.FD == p.listenFD {
			poolerr.Set("pool.CheckConns", poolerr.System, "listener socket error")
			return fmt.Errorf("connpool: listener reported error/hangup")
		}
		idx := p.slotForFD(ev.FD)
		if idx < 0 {
			continue
		}
		p.slots[idx].state |= StateError
		p.RequestClose(idx)
	}
	return nil
}
