// Package notifier wraps Linux epoll into the level-triggered readiness
// notifier the poll loop depends on (spec.md C2). It is deliberately thin:
// one epoll instance, a fixed-size event buffer reused across Poll calls,
// and a Remove that treats an unregistered fd as a no-op so teardown paths
// need not track registration state. Add of an fd that is already
// registered fails.
package notifier

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Event describes one fd's readiness after a Poll call.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	Err      bool
	Hangup   bool
}

// Notifier owns one epoll instance and its reusable event buffer.
type Notifier struct {
	epfd   int
	events []unix.EpollEvent

	// Debug, when set, makes Poll log every registration change and
	// wakeup through the supplied function. Nil by default (no cost).
	Debug func(format string, args ...any)

	// EmitOldDataSignal mirrors the original poller's flag for
	// re-announcing data the embedder left unread. It defaults to false,
	// and neither this package nor internal/connpool reads it: no signal
	// is emitted for stale buffered data based on it.
	EmitOldDataSignal bool

	round int
	fds   []int
}

const defaultMaxEvents = 256

// New creates a Notifier. listenerFD, if non-negative, is registered for
// read-readiness immediately (the shared UDP/TCP listener socket). maxEvents
// bounds the per-Poll event buffer; 0 selects a sensible default.
func New(listenerFD int, maxEvents int) (*Notifier, error) {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("notifier: epoll_create1: %w", err)
	}

	n := &Notifier{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
	}

	if listenerFD >= 0 {
		if err := n.Add(listenerFD); err != nil {
			unix.Close(epfd)
			return nil, err
		}
	}

	return n, nil
}

// Add registers fd for read and write readiness (edge is level-triggered;
// EPOLLIN/EPOLLOUT fire as long as the condition holds).
func (n *Notifier) Add(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("notifier: epoll_ctl(ADD, %d): %w", fd, err)
	}
	n.fds = append(n.fds, fd)
	if n.Debug != nil {
		n.Debug("notifier: added fd %d", fd)
	}
	return nil
}

// Remove unregisters fd. Removing an fd that was never added, or was
// already removed, is not an error: callers close fds and remove them in
// whichever order is convenient, and the kernel's own ENOENT for a fd
// already dropped by a close() is swallowed the same way.
func (n *Notifier) Remove(fd int) error {
	err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("notifier: epoll_ctl(DEL, %d): %w", fd, err)
	}
	for i, f := range n.fds {
		if f == fd {
			n.fds = append(n.fds[:i], n.fds[i+1:]...)
			break
		}
	}
	if n.Debug != nil {
		n.Debug("notifier: removed fd %d", fd)
	}
	return nil
}

// Poll blocks up to timeout for readiness on any registered fd and returns
// the set of events observed. A negative timeout blocks indefinitely; zero
// returns immediately.
func (n *Notifier) Poll(timeout time.Duration) ([]Event, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	count, err := unix.EpollWait(n.epfd, n.events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("notifier: epoll_wait: %w", err)
	}

	out := make([]Event, 0, count)
	for i := 0; i < count; i++ {
		raw := n.events[i]
		ev := Event{
			FD:       int(raw.Fd),
			Readable: raw.Events&(unix.EPOLLIN|unix.EPOLLHUP) != 0,
			Writable: raw.Events&unix.EPOLLOUT != 0,
			Err:      raw.Events&unix.EPOLLERR != 0,
			Hangup:   raw.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		}
		out = append(out, ev)
	}

	if n.Debug != nil {
		n.Debug("notifier: poll woke with %d events", len(out))
	}

	return out, nil
}

// PollOne returns one registered fd per call, round-robining across the
// fds currently registered, without touching the kernel, so the fd it
// returns need not be ready. It is a cheap
// fairness helper for callers that want to service one connection per
// iteration of an outer loop rather than draining a whole Poll batch;
// combine it with SingleFD to check actual readiness.
func (n *Notifier) PollOne() (int, bool) {
	if len(n.fds) == 0 {
		return 0, false
	}
	n.round = (n.round + 1) % len(n.fds)
	return n.fds[n.round], true
}

// SingleFD performs a one-shot, zero-timeout readiness check on a single fd
// without touching the notifier's main registration set. Used by callers
// that need to probe one socket's state outside the regular poll cycle
// (e.g. after a connect() to check writability before the next full Poll).
func SingleFD(fd int) (readable, writable, errored, hungup bool, err error) {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN | unix.POLLOUT}}
	n, pollErr := unix.Poll(pfd, 0)
	if pollErr != nil {
		if pollErr == unix.EINTR {
			return false, false, false, false, nil
		}
		return false, false, false, false, fmt.Errorf("notifier: poll(%d): %w", fd, pollErr)
	}
	if n == 0 {
		return false, false, false, false, nil
	}
	revents := pfd[0].Revents
	readable = revents&unix.POLLIN != 0
	writable = revents&unix.POLLOUT != 0
	errored = revents&unix.POLLERR != 0
	hungup = revents&(unix.POLLHUP|unix.POLLRDHUP) != 0
	return readable, writable, errored, hungup, nil
}

// Close releases the underlying epoll fd. Registered fds are not closed by
// this call; the caller still owns their lifecycle.
func (n *Notifier) Close() error {
	if err := unix.Close(n.epfd); err != nil {
		return fmt.Errorf("notifier: close: %w", err)
	}
	return nil
}
