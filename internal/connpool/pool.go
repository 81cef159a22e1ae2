package connpool

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jroosing/poolnetd/internal/clock"
	"github.com/jroosing/poolnetd/internal/netaddr"
	"github.com/jroosing/poolnetd/internal/notifier"
	"github.com/jroosing/poolnetd/internal/poolerr"
)

// Protocol selects the pool's transport.
type Protocol int

const (
	ProtoTCP Protocol = iota
	ProtoUDP
)

// Config describes how to build a Pool.
type Config struct {
	Name     string
	Protocol Protocol
	Capacity int // max simultaneous connections

	// Listen, when non-empty, is bound and used as the pool's shared
	// accept (TCP) or pseudo-accept (UDP) socket. A pool with no
	// listener is outbound-only: callers drive connections in via
	// Connect.
	Listen     string
	ListenPort uint16
	IPv6       bool

	BufSize int // per-slot receive buffer size, bytes
	TTL     time.Duration // 0 = connections never expire

	// BindRetries and BindRetryDelay bound the bind-retry loop used
	// when the listen address is still held by a recently-exited
	// process (EADDRINUSE). Zero retries disables the loop (single
	// attempt, matching a plain bind()).
	BindRetries    int
	BindRetryDelay time.Duration

	Handler Handler
	Clock   clock.Clock

	// Debug enables per-signal debuglog.Broadcast fanout.
	Debug bool
}

// Pool is a fixed-capacity set of connection slots sharing one poll loop
// and, optionally, one listener socket.
type Pool struct {
	name     string
	protocol Protocol
	capacity int
	bufSize  int
	ttl      time.Duration

	slots []slot
	live  int // count of non-free slots, for O(1) occupancy checks

	listenFD   int // -1 if this pool has no listener
	listenPort uint16
	listenHost string
	isV6       bool

	notifier *notifier.Notifier
	handler  Handler
	clock    clock.Clock
	bufPool  *bufPool

	Debug bool

	state PoolState

	stats Stats
}

// New builds a Pool per cfg, binding and registering its listener (if any)
// with a fresh epoll-backed notifier.
func New(cfg Config) (*Pool, error) {
	poolerr.Clear()

	if cfg.Capacity <= 0 {
		poolerr.Set("pool.New", poolerr.CustomMessage, "capacity must be positive")
		return nil, fmt.Errorf("connpool: capacity must be positive")
	}
	bufSize := cfg.BufSize
	if bufSize <= 0 {
		bufSize = 4096
	}

	cl := cfg.Clock
	if cl == nil {
		cl = clock.System{}
	}

	p := &Pool{
		name:     cfg.Name,
		protocol: cfg.Protocol,
		capacity: cfg.Capacity,
		bufSize:  bufSize,
		ttl:      cfg.TTL,
		slots:    make([]slot, cfg.Capacity),
		listenFD: -1,
		isV6:     cfg.IPv6,
		handler:  cfg.Handler,
		clock:    cl,
		Debug:    cfg.Debug,
		bufPool:  newBufPool(bufSize),
	}

	if cfg.Listen != "" {
		fd, port, err := bindListener(cfg, cfg.BindRetries, cfg.BindRetryDelay)
		if err != nil {
			poolerr.Set("pool.New", poolerr.System, err.Error())
			return nil, err
		}
		p.listenFD = fd
		p.listenPort = port
		p.listenHost = cfg.Listen
	}

	n, err := notifier.New(p.listenFD, cfg.Capacity+1)
	if err != nil {
		if p.listenFD >= 0 {
			unix.Close(p.listenFD)
		}
		poolerr.Set("pool.New", poolerr.System, err.Error())
		return nil, err
	}
	p.notifier = n

	return p, nil
}

// Name returns the pool's configured name, used only for logging/metrics.
func (p *Pool) Name() string { return p.name }

// Capacity returns the pool's fixed slot count.
func (p *Pool) Capacity() int { return p.capacity }

// Protocol returns the pool's configured transport.
func (p *Pool) Protocol() Protocol { return p.protocol }

// ListenPort returns the pool's bound listener port (useful when Config
// asked for an ephemeral port via ListenPort 0), or 0 if this pool has no
// listener.
func (p *Pool) ListenPort() uint16 { return p.listenPort }

// Live returns the number of currently occupied slots.
func (p *Pool) Live() int { return p.live }

// State returns the slot's current flags, or StateFree for an out-of-range
// or unoccupied index.
func (p *Pool) State(idx int) State {
	if idx < 0 || idx >= len(p.slots) {
		return StateFree
	}
	return p.slots[idx].state
}

// LocalEndpoint returns the pool's bound listener address, or the zero
// Endpoint if this pool has no listener.
func (p *Pool) LocalEndpoint() netaddr.Endpoint {
	if p.listenFD < 0 {
		return netaddr.Endpoint{}
	}
	family := netaddr.FamilyV4
	if p.isV6 {
		family = netaddr.FamilyV6
	}
	ep, err := netaddr.ParseText(family, p.listenHost, p.listenPort)
	if err != nil {
		return netaddr.Endpoint{}
	}
	return ep
}

// Peer returns the remote endpoint associated with idx.
func (p *Pool) Peer(idx int) netaddr.Endpoint {
	if idx < 0 || idx >= len(p.slots) {
		return netaddr.Endpoint{}
	}
	return p.slots[idx].peer
}

// UserData returns the opaque value an embedder previously associated with
// idx via SetUserData, or nil if none was set (or idx is free/out of
// range). The core never inspects it; it survives Move and Resize
// migrations as part of the slot's struct copy and is cleared whenever a
// slot returns to the free list (spec.md §4.3 copy/§4.7 CREATED-
// DESTROYING-MOVED_TO-MOVED_FROM lifecycle).
func (p *Pool) UserData(idx int) any {
	if idx < 0 || idx >= len(p.slots) {
		return nil
	}
	return p.slots[idx].userData
}

// SetUserData associates data with idx, typically from inside a Handler
// reacting to SigCreated, SigAccepted, SigConnected, or SigMovedTo.
func (p *Pool) SetUserData(idx int, data any) {
	if idx < 0 || idx >= len(p.slots) {
		return
	}
	p.slots[idx].userData = data
}

// Stats returns a point-in-time snapshot of the pool's counters.
func (p *Pool) Stats() StatsSnapshot { return p.stats.Snapshot() }

// firstFreeSlot finds the lowest-index free slot, or -1 if the pool is at
// capacity. Linear scan: spec.md bounds Capacity to sizes where this is
// cheaper in practice than tracking a free list (bitset scan favors cache
// locality over bookkeeping overhead for the pool sizes this core targets).
func (p *Pool) firstFreeSlot() int {
	for i := range p.slots {
		if !p.slots[i].state.Has(StateAllocated) {
			return i
		}
	}
	return -1
}

// FindFreeSlot is the exported form of firstFreeSlot, part of spec.md §6's
// finder set (Pool::find_free_slot).
func (p *Pool) FindFreeSlot() int { return p.firstFreeSlot() }

// ByPort returns the index of the first occupied slot whose port matches —
// the local (bound) port if local is true, the remote peer's port
// otherwise — or -1 if none matches. Part of spec.md §6's finder set
// (Pool::by_port).
func (p *Pool) ByPort(port uint16, local bool) int {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.state.Has(StateAllocated) {
			continue
		}
		ep := s.peer
		if local {
			ep = s.local
		}
		if ep.Port() == port {
			return i
		}
	}
	return -1
}

// ByAddress returns the index of the first occupied slot whose endpoint —
// local if local is true, remote otherwise — equals addr, or -1 if none
// matches. Part of spec.md §6's finder set (Pool::by_address).
func (p *Pool) ByAddress(addr netaddr.Endpoint, local bool) int {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.state.Has(StateAllocated) {
			continue
		}
		ep := s.peer
		if local {
			ep = s.local
		}
		if ep == addr {
			return i
		}
	}
	return -1
}

func (p *Pool) allocSlot() (int, error) {
	if p.state&PoolStateBusy != 0 {
		poolerr.Set("pool.alloc", poolerr.Locked, "pool busy (resize/move in progress)")
		return -1, fmt.Errorf("connpool: pool busy")
	}
	idx := p.firstFreeSlot()
	if idx < 0 {
		poolerr.Set("pool.alloc", poolerr.ConnListFull, "")
		p.stats.queueFullCount.Add(1)
		return -1, fmt.Errorf("connpool: pool at capacity")
	}
	s := &p.slots[idx]
	s.reset()
	s.fd = -1
	s.state = StateAllocated
	s.recvBuf = make([]byte, p.bufSize)
	s.createdAt = p.clock.Now()
	if p.ttl > 0 {
		s.expireAt = s.createdAt.Add(p.ttl)
	}
	p.live++
	// conn_count/active_conn_count are deliberately NOT bumped here: per
	// spec.md §3, conn_count is "the lifetime count of slots that
	// transitioned to CONNECTED", and active_conn_count/conn_count is the
	// mean occupancy observed "at accept time". A slot reserved here may
	// still be denied (SigAccepted returning VerdictDeny) or fail to
	// connect, neither of which ever reaches StateConnected — counting at
	// allocation would inflate both stats for connections that never
	// admitted. See onAccepted/pollConnectCompletion for the real bump.
	p.dispatch(idx, SigCreated)
	return idx, nil
}

// destroySlot releases idx's resources and invokes SigDestroying first.
// denied suppresses that callback for connections refused at accept/connect
// time, which never reached a fully "live" state from the embedder's view.
func (p *Pool) destroySlot(idx int, denied bool) {
	s := &p.slots[idx]
	if !s.state.Has(StateAllocated) {
		return
	}
	if !denied {
		p.dispatch(idx, SigDestroying)
		p.stats.totalTimeMs.Add(uint64(p.clock.Now().Elapsed(s.createdAt).Milliseconds()))
	}
	if !s.udpPeer && s.fd >= 0 {
		_ = p.notifier.Remove(s.fd)
		unix.Close(s.fd)
	}
	s.reset()
	p.live--
	p.stats.closed.Add(1)
}

// Close tears down every live slot, the listener (if any), and the
// notifier. The pool must not be used after Close returns.
func (p *Pool) Close() error {
	for i := range p.slots {
		if p.slots[i].state.Has(StateAllocated) {
			p.destroySlot(i, false)
		}
	}
	if p.listenFD >= 0 {
		_ = p.notifier.Remove(p.listenFD)
		unix.Close(p.listenFD)
		p.listenFD = -1
	}
	return p.notifier.Close()
}
