package connpool

import (
	"fmt"
	"time"

	"github.com/jroosing/poolnetd/internal/netaddr"
)

// ConnInfo is a point-in-time snapshot of one occupied slot, used by
// management surfaces (internal/poolapi) that need to list live connections
// without reaching into pool internals.
type ConnInfo struct {
	Index    int
	FD       int
	Local    netaddr.Endpoint
	Remote   netaddr.Endpoint
	State    State
	Age      time.Duration
	Buffered int // unread bytes currently sitting in the slot's receive buffer
}

// Connections returns a ConnInfo for every currently occupied slot, ordered
// by index.
func (p *Pool) Connections() []ConnInfo {
	now := p.clock.Now()

	out := make([]ConnInfo, 0, p.live)
	for i := range p.slots {
		s := &p.slots[i]
		if !s.state.Has(StateAllocated) {
			continue
		}
		out = append(out, ConnInfo{
			Index:    i,
			FD:       s.fd,
			Local:    s.local,
			Remote:   s.peer,
			State:    s.state,
			Age:      now.Elapsed(s.createdAt),
			Buffered: s.unreadLen(),
		})
	}
	return out
}

// ConnectionIsAlive reports whether idx holds a live, usable connection —
// a state-bits check only, no syscall, distinct from the notifier poll
// CheckConns performs.
func (p *Pool) ConnectionIsAlive(idx int) bool {
	if idx < 0 || idx >= len(p.slots) {
		return false
	}
	s := p.slots[idx].state
	return s.Has(StateAllocated) && s.Has(StateConnected) &&
		!s.Has(StateError) && !s.Has(StateDisconnection)
}

// CloseConnection requests orderly shutdown of idx, returning an error if
// idx is out of range or not currently occupied. Unlike RequestClose (used
// internally by the poll loop, which silently no-ops on a bad index), this
// is the validating entry point exposed to management callers.
func (p *Pool) CloseConnection(idx int) error {
	if idx < 0 || idx >= len(p.slots) {
		return fmt.Errorf("connpool: index %d out of range", idx)
	}
	s := &p.slots[idx]
	if !s.state.Has(StateAllocated) {
		return fmt.Errorf("connpool: slot %d is not occupied", idx)
	}
	if s.state.Has(StateDisconnection) {
		return nil
	}
	p.RequestClose(idx)
	return nil
}
