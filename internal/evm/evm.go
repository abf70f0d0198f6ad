// Package evm implements the per-subsystem cooperative event loop shared
// by the IGMP, MLD and data-plane bridge goroutines: a bounded set of
// readable sockets and a deadline-ordered list of one-shot timers, with
// no concurrency inside a single Loop.
package evm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Callback is invoked by the loop, either because a registered socket
// became readable or because a timer reached its deadline. It must not
// block.
type Callback func()

// Key is a timer's identity. The loop does not check for an existing
// timer with the same key; callers must never schedule two at once,
// exactly as the source's (callback, closure) pair was. A Key
// is typically a small struct combining a discriminant and a pointer to
// the owning group or interface record, which makes it comparable with
// ==.
type Key any

type socketEntry struct {
	fd       int
	callback Callback
}

type timerEntry struct {
	key      Key
	deadline time.Time
	callback Callback
}

// Loop is a single-threaded cooperative dispatcher. It is not safe for
// concurrent use; each subsystem goroutine owns exactly one Loop.
type Loop struct {
	clock  clockwork.Clock
	poller *poller
	log    *slog.Logger

	sockets    []socketEntry
	maxSockets int
	byFd       map[int]Callback

	timers    []timerEntry
	maxTimers int
}

// New creates a Loop with storage preallocated for maxSockets sockets and
// maxTimers timers, mirroring the source's fixed-capacity design so that
// no allocation occurs once the subsystem has started running.
func New(maxSockets, maxTimers int, log *slog.Logger) (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("creating poller: %w", err)
	}

	return &Loop{
		clock:      clockwork.NewRealClock(),
		poller:     p,
		log:        log,
		sockets:    make([]socketEntry, 0, maxSockets),
		maxSockets: maxSockets,
		byFd:       make(map[int]Callback, maxSockets),
		timers:     make([]timerEntry, 0, maxTimers),
		maxTimers:  maxTimers,
	}, nil
}

// WithClock overrides the loop's clock source, for deterministic tests.
func (l *Loop) WithClock(clock clockwork.Clock) *Loop {
	l.clock = clock
	return l
}

// AddSocket registers a read-ready callback for fd. There is no removal,
// matching the source design: subsystems only ever add the capture
// handles and bridge sockets they open at startup.
func (l *Loop) AddSocket(fd int, callback Callback) error {
	if len(l.sockets) >= l.maxSockets {
		return fmt.Errorf("evm: socket count %d exceeded", l.maxSockets)
	}
	if err := l.poller.add(fd); err != nil {
		return err
	}
	l.sockets = append(l.sockets, socketEntry{fd: fd, callback: callback})
	l.byFd[fd] = callback
	return nil
}

// AddTimer schedules callback to run once, millis from now, identified
// by key. If a timer table slot is not available the timer is dropped
// and the event is logged, matching the source's "log and drop" policy
// at capacity.
func (l *Loop) AddTimer(millis int, key Key, callback Callback) {
	if len(l.timers) >= l.maxTimers {
		if l.log != nil {
			l.log.Warn("evm: timer table full, dropping timer", "capacity", l.maxTimers)
		}
		return
	}

	deadline := l.clock.Now().Add(time.Duration(millis) * time.Millisecond)

	index := 0
	for index < len(l.timers) && !deadline.Before(l.timers[index].deadline) {
		index++
	}

	l.timers = append(l.timers, timerEntry{})
	copy(l.timers[index+1:], l.timers[index:])
	l.timers[index] = timerEntry{key: key, deadline: deadline, callback: callback}
}

// DelTimer removes the outstanding timer identified by key, if any. It
// is a no-op if no such timer is scheduled.
func (l *Loop) DelTimer(key Key) {
	for i := range l.timers {
		if l.timers[i].key == key {
			l.timers = append(l.timers[:i], l.timers[i+1:]...)
			return
		}
	}
}

// HasTimer reports whether a timer identified by key is currently
// scheduled.
func (l *Loop) HasTimer(key Key) bool {
	for i := range l.timers {
		if l.timers[i].key == key {
			return true
		}
	}
	return false
}

// Run dispatches socket and timer callbacks forever, until ctx is
// canceled. Within one iteration, ready sockets are dispatched before
// expired timers, matching the source's ordering.
func (l *Loop) Run(ctx context.Context) error {
	defer l.poller.close()

	ready := make([]int, 0, len(l.sockets))
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		timeoutMillis := -1
		if len(l.timers) > 0 {
			remaining := l.timers[0].deadline.Sub(l.clock.Now())
			timeoutMillis = int(remaining / time.Millisecond)
			if timeoutMillis < 1 {
				timeoutMillis = 1
			}
		}

		var err error
		ready, err = l.poller.wait(timeoutMillis, ready)
		if err != nil {
			if l.log != nil {
				l.log.Warn("evm: poll error", "error", err)
			}
		}

		for _, fd := range ready {
			if cb, ok := l.byFd[fd]; ok {
				cb()
			}
		}

		now := l.clock.Now()
		for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
			cb := l.timers[0].callback
			l.timers = l.timers[1:]
			cb()
		}
	}
}
