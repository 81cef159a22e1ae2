package connpool

import (
	"fmt"

	"github.com/jroosing/poolnetd/internal/poolerr"
)

// Resize changes the pool's slot capacity. Growing simply extends the slot
// array (new slots start free; this core allocates a slot's receive buffer
// lazily at Connect/accept time rather than up front, so a grown-but-unused
// slot holds no resources and needs no SigCreated). Shrinking
// first defragments: every live slot whose index lands at or beyond
// newCapacity is migrated into the lowest-index free slot below newCapacity,
// preserving its fd, buffered bytes, and deadlines; each migration fires
// SigMovedTo on the destination followed by SigMovedFrom on the source, in
// that order (spec.md §4.4 step 4). The notifier tracks registrations by fd,
// not by slot index, so a migrated fd needs no re-registration. Shrinking
// below the current live count fails without modifying the pool.
func (p *Pool) Resize(newCapacity int) error {
	poolerr.Clear()

	if newCapacity <= 0 {
		poolerr.Set("pool.Resize", poolerr.CustomMessage, "capacity must be positive")
		return fmt.Errorf("connpool: capacity must be positive")
	}
	if p.state&PoolStateBusy != 0 {
		poolerr.Set("pool.Resize", poolerr.Locked, "pool busy")
		return fmt.Errorf("connpool: pool busy")
	}

	if newCapacity >= p.capacity {
		grown := make([]slot, newCapacity)
		copy(grown, p.slots)
		for i := p.capacity; i < newCapacity; i++ {
			grown[i].fd = -1
		}
		p.slots = grown
		p.capacity = newCapacity
		return nil
	}

	if p.live > newCapacity {
		poolerr.Set("pool.Resize", poolerr.ConnListFull, "live connections exceed requested capacity")
		p.stats.queueFullCount.Add(1)
		return fmt.Errorf("connpool: cannot shrink to %d: %d live connections", newCapacity, p.live)
	}

	p.state |= PoolStateBusy
	defer func() { p.state &^= PoolStateBusy }()

	var overflow []int
	for i := newCapacity; i < len(p.slots); i++ {
		if p.slots[i].state.Has(StateAllocated) {
			overflow = append(overflow, i)
		}
	}

	freeCursor := 0
	for _, srcIdx := range overflow {
		for freeCursor < newCapacity && p.slots[freeCursor].state.Has(StateAllocated) {
			freeCursor++
		}
		dstIdx := freeCursor

		p.slots[dstIdx] = p.slots[srcIdx]
		p.dispatch(dstIdx, SigMovedTo)

		p.slots[srcIdx].reset()
		p.slots[srcIdx].fd = -1
		p.dispatch(srcIdx, SigMovedFrom)

		freeCursor++
	}

	p.slots = p.slots[:newCapacity]
	p.capacity = newCapacity
	return nil
}
