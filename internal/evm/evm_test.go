package evm

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestLoop(t *testing.T, maxTimers int) (*Loop, clockwork.FakeClock) {
	t.Helper()
	l, err := New(0, maxTimers, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := clockwork.NewFakeClock()
	l.WithClock(clock)
	return l, clock
}

func TestAddTimerDeadlineOrder(t *testing.T) {
	l, _ := newTestLoop(t, 8)

	var fired []string
	l.AddTimer(300, "c", func() { fired = append(fired, "c") })
	l.AddTimer(100, "a", func() { fired = append(fired, "a") })
	l.AddTimer(200, "b", func() { fired = append(fired, "b") })

	want := []string{"a", "b", "c"}
	for i, entry := range l.timers {
		if entry.key != want[i] {
			t.Fatalf("timers[%d].key = %v, want %v", i, entry.key, want[i])
		}
	}
}

func TestDelTimerByKey(t *testing.T) {
	l, _ := newTestLoop(t, 8)

	l.AddTimer(100, "a", func() {})
	l.AddTimer(200, "b", func() {})

	l.DelTimer("a")

	if l.HasTimer("a") {
		t.Fatalf("timer \"a\" still present after DelTimer")
	}
	if !l.HasTimer("b") {
		t.Fatalf("timer \"b\" unexpectedly removed")
	}
}

func TestAddTimerDropsWhenFull(t *testing.T) {
	l, _ := newTestLoop(t, 1)

	l.AddTimer(100, "a", func() {})
	l.AddTimer(100, "b", func() {})

	if len(l.timers) != 1 {
		t.Fatalf("len(timers) = %d, want 1", len(l.timers))
	}
	if !l.HasTimer("a") {
		t.Fatalf("first timer should have been kept")
	}
}

func TestExpiredTimersFireOnce(t *testing.T) {
	l, clock := newTestLoop(t, 8)

	count := 0
	l.AddTimer(50, "a", func() { count++ })
	clock.Advance(100 * time.Millisecond)

	now := clock.Now()
	for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
		cb := l.timers[0].callback
		l.timers = l.timers[1:]
		cb()
	}

	if count != 1 {
		t.Fatalf("timer fired %d times, want 1", count)
	}
	if l.HasTimer("a") {
		t.Fatalf("timer still scheduled after firing")
	}
}
