package connpool

import (
	"fmt"

	"github.com/jroosing/poolnetd/internal/poolerr"
)

// Move transplants the live connection at srcIdx in p into dst, preserving
// its fd, peer endpoint, buffered data, and TTL deadline. It fires
// SIG_MOVED_FROM on the source slot (fd already detached from p's
// notifier, about to be vacated) and SIG_MOVED_TO on the destination slot
// (fd now registered with dst's notifier). Neither SIG_CREATED/DESTROYING
// nor the denial path applies to a move: a migrated connection is never
// "new" from the embedder's point of view.
func (p *Pool) Move(dst *Pool, srcIdx int) (int, error) {
	poolerr.Clear()

	if srcIdx < 0 || srcIdx >= len(p.slots) || !p.slots[srcIdx].state.Has(StateAllocated) {
		poolerr.Set("pool.Move", poolerr.InvalidConnIndex, "")
		return -1, fmt.Errorf("connpool: invalid source slot index %d", srcIdx)
	}
	if p.state&PoolStateBusy != 0 || dst.state&PoolStateBusy != 0 {
		poolerr.Set("pool.Move", poolerr.Locked, "pool busy")
		return -1, fmt.Errorf("connpool: pool busy")
	}

	src := &p.slots[srcIdx]
	if src.udpPeer {
		poolerr.Set("pool.Move", poolerr.BadProto, "UDP peer slots cannot move: they share the source pool's listener socket")
		return -1, fmt.Errorf("connpool: cannot move a synthetic UDP peer slot")
	}

	dstIdx := dst.firstFreeSlot()
	if dstIdx < 0 {
		poolerr.Set("pool.Move", poolerr.ConnListFull, "destination pool at capacity")
		return -1, fmt.Errorf("connpool: destination pool at capacity")
	}

	p.state |= PoolStateBusy
	dst.state |= PoolStateBusy
	defer func() {
		p.state &^= PoolStateBusy
		dst.state &^= PoolStateBusy
	}()

	if err := p.notifier.Remove(src.fd); err != nil {
		poolerr.Set("pool.Move", poolerr.System, err.Error())
		return -1, err
	}

	p.dispatch(srcIdx, SigMovedFrom)

	moved := *src
	src.reset()
	src.fd = -1
	p.live--

	d := &dst.slots[dstIdx]
	*d = moved
	dst.live++

	if err := dst.notifier.Add(d.fd); err != nil {
		poolerr.Set("pool.Move", poolerr.System, err.Error())
		*d = slot{fd: -1}
		dst.live--
		return -1, err
	}

	dst.dispatch(dstIdx, SigMovedTo)

	return dstIdx, nil
}
