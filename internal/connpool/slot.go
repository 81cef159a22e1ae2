package connpool

import (
	"github.com/jroosing/poolnetd/internal/clock"
	"github.com/jroosing/poolnetd/internal/netaddr"
)

// slot holds one connection's live state. Slots are addressed only by
// (pool, index); nothing outside this package ever keeps a pointer to one,
// since Resize can reallocate the backing slice out from under any stored
// pointer. Handlers are always given a *Pool and an index instead.
type slot struct {
	state State
	fd    int
	local netaddr.Endpoint // this connection's own bound address (spec.md §3)
	peer  netaddr.Endpoint

	// udpPeer marks a slot that is a synthetic per-peer connection
	// multiplexed over the pool's single shared UDP socket rather than
	// owning its own fd. udpFD, when udpPeer is true, names the shared
	// socket actually used for recv/send.
	udpPeer bool
	udpFD   int

	recvBuf  []byte
	bufPos   int // next unread byte
	bufFill  int // one past the last valid byte

	sendBuf []byte // queued outbound bytes not yet written to the kernel

	createdAt clock.Millis
	expireAt  clock.Millis // zero = persistent, never expires

	// disconnectArmed marks the first of the two orderly-shutdown poll
	// cycles having already run for this slot.
	disconnectArmed bool

	// userData is an opaque embedder-owned pointer. The core never reads
	// or frees it; it survives Move and Resize migrations as part of the
	// slot's plain struct copy, and is reset to nil (never copied
	// forward) whenever a slot returns to the free list. See
	// Pool.UserData/SetUserData.
	userData any
}

func (s *slot) reset() {
	*s = slot{}
}

// unreadLen returns the number of unread bytes currently buffered.
func (s *slot) unreadLen() int {
	return s.bufFill - s.bufPos
}

// compactThreshold mirrors spec.md's bufpos > bufsize - bufsize/3 rule: once
// the unread window has drifted more than two-thirds of the way into the
// buffer, compact rather than let it run into the end.
func (s *slot) needsCompaction() bool {
	size := len(s.recvBuf)
	return s.bufPos > size-size/3
}

// compact shifts unread bytes down to offset 0, restoring headroom at the
// tail of the buffer for the next recv.
func (s *slot) compact() {
	if s.bufPos == 0 {
		return
	}
	n := copy(s.recvBuf, s.recvBuf[s.bufPos:s.bufFill])
	s.bufPos = 0
	s.bufFill = n
}

// consume advances bufPos by n, clearing StateIn once the buffer is
// fully drained.
func (s *slot) consume(n int) {
	s.bufPos += n
	if s.bufPos > s.bufFill {
		s.bufPos = s.bufFill
	}
	if s.bufPos >= s.bufFill {
		s.state &^= StateIn
	}
}

// queueSend appends b to the slot's pending outbound buffer and sets
// StateOut.
func (s *slot) queueSend(b []byte) {
	s.sendBuf = append(s.sendBuf, b...)
	if len(s.sendBuf) > 0 {
		s.state |= StateOut
	}
}

// appendData writes a received datagram/chunk directly into the receive
// buffer, compacting first if needed. Unlike recvInto (which reads off a
// socket itself), this is used by the UDP routing path, which already has
// the bytes in hand from a single shared recvmsg call. Bytes beyond the
// buffer's remaining room are dropped; a fixed per-slot buffer sized at
// least as large as the protocol's max datagram avoids this in practice.
func (s *slot) appendData(b []byte) bool {
	if s.needsCompaction() {
		s.compact()
	}
	room := len(s.recvBuf) - s.bufFill
	if room <= 0 {
		return false
	}
	if len(b) > room {
		b = b[:room]
	}
	n := copy(s.recvBuf[s.bufFill:], b)
	s.bufFill += n
	if n > 0 {
		s.state |= StateIn
	}
	return n > 0
}
