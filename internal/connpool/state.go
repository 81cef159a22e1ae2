// Package connpool implements the fixed-capacity connection pool core:
// a slot array, an optional shared listener (TCP accept or UDP pseudo-accept,
// which consumes a new peer's first datagram via recvmsg rather than peeking
// at it), a single-threaded
// non-blocking poll loop, and an eleven-signal callback dispatched to the embedder. It is the direct Go translation of
// the original ap-multiconn-toolkit conn_pool/poller pair, restructured
// around golang.org/x/sys/unix epoll rather than hand-rolled C descriptor
// sets.
package connpool

// State is a bitset describing a slot's condition. Multiple flags can be
// set at once (e.g. CONNECTED|OUT while a response is still draining).
type State uint16

const (
	// StateFree marks a slot with no live connection. The zero value.
	StateFree State = 0

	// StateAllocated marks a slot as occupied from the moment it is
	// handed out by allocSlot, before any other flag is necessarily
	// true (an outbound connect(), for instance, is allocated but not
	// yet StateConnected). Every occupancy check in this package tests
	// this bit rather than comparing state to StateFree, since a
	// connecting-but-not-yet-connected slot would otherwise read back
	// as indistinguishable from a free one.
	StateAllocated State = 1 << (iota - 1)

	// StateError indicates the last I/O operation on this slot failed.
	// The slot is scheduled for close on the next poll cycle.
	StateError

	// StateConnected indicates a live, usable connection (post-accept,
	// post-connect, or the synthetic per-peer UDP connection).
	StateConnected

	// StateBusy marks a slot mid-callback: dispatch sets it before the
	// Handler runs and clears it afterwards. Nothing else in the package
	// checks it.
	StateBusy

	// StateIn indicates unread data sits in the slot's receive buffer.
	StateIn

	// StateOut indicates queued data is waiting to be sent.
	StateOut

	// StateExpired indicates the slot's TTL deadline has passed. Set by
	// the poll loop's expiry sweep; triggers SigTimedOut.
	StateExpired

	// StateDisconnection marks a slot queued for orderly shutdown: set
	// on one poll cycle, the slot is actually closed on the next,
	// giving any final SigDataLeft a chance to be observed first.
	StateDisconnection
)

func (s State) Has(flag State) bool { return s&flag != 0 }

func (s State) String() string {
	if s == StateFree {
		return "FREE"
	}
	names := []struct {
		flag State
		name string
	}{
		{StateAllocated, "ALLOCATED"},
		{StateError, "ERROR"},
		{StateConnected, "CONNECTED"},
		{StateBusy, "BUSY"},
		{StateIn, "IN"},
		{StateOut, "OUT"},
		{StateExpired, "EXPIRED"},
		{StateDisconnection, "DISCONNECTION"},
	}
	out := ""
	for _, n := range names {
		if s.Has(n.flag) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "FREE"
	}
	return out
}

// PoolState mirrors State but for the pool as a whole.
type PoolState uint8

const (
	PoolStateIdle PoolState = 0
	// PoolStateBusy marks the pool mid-Resize or mid-Move: new accepts
	// and further structural operations are rejected until it clears.
	PoolStateBusy PoolState = 1 << iota
)
