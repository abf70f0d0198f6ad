//go:build linux

package evm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// poller wraps an epoll instance. One poller backs one Loop.
type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &poller{epfd: fd}, nil
}

func (p *poller) add(fd int) error {
	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return fmt.Errorf("epoll_ctl(ADD): %w", err)
	}
	return nil
}

// wait blocks for up to timeoutMillis (-1 for unbounded) and appends the
// fd of every ready socket to ready.
func (p *poller) wait(timeoutMillis int, ready []int) ([]int, error) {
	var events [64]unix.EpollEvent

	n, err := unix.EpollWait(p.epfd, events[:], timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return ready[:0], nil
		}
		return ready[:0], fmt.Errorf("epoll_wait: %w", err)
	}

	ready = ready[:0]
	for i := 0; i < n; i++ {
		ready = append(ready, int(events[i].Fd))
	}
	return ready, nil
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}
