//go:build !linux

package evm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// poller wraps a kqueue instance, the BSD/Darwin analog to poller_linux's
// epoll instance.
type poller struct {
	kq int
}

func newPoller() (*poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	return &poller{kq: fd}, nil
}

func (p *poller) add(fd int) error {
	changes := []unix.Kevent_t{{Filter: unix.EVFILT_READ, Flags: unix.EV_ADD, Ident: uint64(fd)}}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		return fmt.Errorf("kevent(EV_ADD): %w", err)
	}
	return nil
}

func (p *poller) wait(timeoutMillis int, ready []int) ([]int, error) {
	var events [64]unix.Kevent_t

	var ts *unix.Timespec
	if timeoutMillis >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMillis) * int64(1_000_000))
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, events[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return ready[:0], nil
		}
		return ready[:0], fmt.Errorf("kevent(wait): %w", err)
	}

	ready = ready[:0]
	for i := 0; i < n; i++ {
		ready = append(ready, int(events[i].Ident))
	}
	return ready, nil
}

func (p *poller) close() error {
	return unix.Close(p.kq)
}
