package connpool

import (
	"strconv"

	"github.com/jroosing/poolnetd/internal/debuglog"
)

// Signal is one of the eleven lifecycle notifications the pool delivers to the
// embedder's Handler. Signals fire from inside the poll loop; a Handler
// must not block or perform long-running work.
type Signal int

const (
	// SigCreated fires once, right after a slot is allocated but before
	// any socket operation (outbound connect not yet attempted, accept
	// not yet confirmed). Useful for embedder-side bookkeeping.
	SigCreated Signal = iota

	// SigDestroying fires once, immediately before a slot's resources
	// (fd, buffers) are released and the slot returns to the free list.
	SigDestroying

	// SigConnected fires when an outbound (client-role) connection
	// completes its non-blocking connect().
	SigConnected

	// SigAccepted fires for a newly accepted inbound connection (TCP
	// accept() or UDP pseudo-accept, which reads a new peer's first
	// datagram off the shared listener with recvmsg, consuming it rather
	// than peeking at it). A Handler returning VerdictDeny here causes the slot
	// to be torn down immediately without ever reaching SigConnected.
	SigAccepted

	// SigClosing fires on the first of the two orderly-shutdown poll
	// cycles, once StateDisconnection has just been set.
	SigClosing

	// SigMovedTo fires on the destination slot after Pool.Move
	// transplants a connection into this pool.
	SigMovedTo

	// SigMovedFrom fires on the source slot of a migration. Move fires it
	// after the fd has been removed from the source pool's notifier and
	// before the slot is vacated; Resize fires it after the source slot
	// has already been reset.
	SigMovedFrom

	// SigDataIn fires when new bytes have landed in the receive buffer
	// (StateIn just got set or additional data was appended to it).
	SigDataIn

	// SigCanSend fires when the socket becomes writable and StateOut is
	// set, i.e. there is queued output and the kernel has buffer space.
	SigCanSend

	// SigTimedOut fires when the slot's TTL deadline has passed.
	SigTimedOut

	// SigDataLeft fires during the first orderly-shutdown cycle when
	// the receive buffer still holds unread bytes, giving the embedder
	// one last chance to consume them before the slot closes.
	SigDataLeft
)

func (s Signal) String() string {
	switch s {
	case SigCreated:
		return "CREATED"
	case SigDestroying:
		return "DESTROYING"
	case SigConnected:
		return "CONNECTED"
	case SigAccepted:
		return "ACCEPTED"
	case SigClosing:
		return "CLOSING"
	case SigMovedTo:
		return "MOVED_TO"
	case SigMovedFrom:
		return "MOVED_FROM"
	case SigDataIn:
		return "DATA_IN"
	case SigCanSend:
		return "CAN_SEND"
	case SigTimedOut:
		return "TIMED_OUT"
	case SigDataLeft:
		return "DATA_LEFT"
	default:
		return "UNKNOWN_SIGNAL"
	}
}

// Verdict is a Handler's response to a signal. Most signals ignore the
// return value; only SigAccepted uses it, to allow denial.
type Verdict int

const (
	// VerdictOK continues normal processing.
	VerdictOK Verdict = iota
	// VerdictDeny rejects a new connection (meaningful only for
	// SigAccepted); the slot is torn down without
	// a SigDestroying callback, mirroring a denied accept never having
	// been "created" from the embedder's point of view.
	VerdictDeny
	// VerdictClose is a valid return value, but no signal acts on it:
	// the pool treats it the same as VerdictOK.
	VerdictClose
)

// Handler is the embedder's callback, invoked once per signal per slot.
// idx is stable for the lifetime of the connection (Resize defragmentation
// and Move both fire MOVED_FROM/MOVED_TO rather than silently relocating a
// live idx out from under a Handler).
type Handler func(p *Pool, idx int, sig Signal) Verdict

func (p *Pool) dispatch(idx int, sig Signal) Verdict {
	if p.handler == nil {
		return VerdictOK
	}
	slot := &p.slots[idx]
	slot.state |= StateBusy
	if p.Debug {
		debuglog.Broadcast(p.name + ": slot " + strconv.Itoa(idx) + " signal " + sig.String())
	}
	v := p.handler(p, idx, sig)
	slot.state &^= StateBusy
	return v
}
