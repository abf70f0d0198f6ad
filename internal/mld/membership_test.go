package mld

import (
	"log/slog"
	"net"
	"testing"

	"github.com/google/gopacket"

	"github.com/dennypage/mcast-bridge/internal/config"
	"github.com/dennypage/mcast-bridge/internal/evm"
	"github.com/dennypage/mcast-bridge/internal/group"
	"github.com/dennypage/mcast-bridge/internal/iface"
)

type fakeHandle struct {
	written [][]byte
}

func (f *fakeHandle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, errNoData
}

func (f *fakeHandle) WritePacketData(data []byte) error {
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

var errNoData = errPlaceholder{}

type errPlaceholder struct{}

func (errPlaceholder) Error() string { return "no data" }

func newTestEngine(t *testing.T) (*Engine, *ifaceState, *fakeHandle) {
	t.Helper()

	loop, err := evm.New(0, 64, slog.Default())
	if err != nil {
		t.Fatalf("evm.New: %v", err)
	}

	e := &Engine{loop: loop, log: slog.Default(), mode: config.QuerierQuick}

	in := &iface.Interface{
		Name:          "eth0",
		Index:         2,
		IPv6LinkLocal: net.ParseIP("fe80::1"),
		MACAddr:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
	}
	handle := &fakeHandle{}
	ifs := &ifaceState{
		in:         in,
		groups:     group.New[[16]byte](4, isMLDLinkLocal),
		handle:     handle,
		mode:       config.QuerierQuick,
		qrv:        defaultRobustness,
		qqicSec:    queryIntervalSec,
		respMillis: maxRespMillis,
		state:      stateActive,
	}
	e.interfaces = append(e.interfaces, ifs)

	return e, ifs, handle
}

func testGroup(b byte) [16]byte {
	return [16]byte{0xff, 0x05, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, b}
}

func TestJoinActivatesGroupAndSubscribers(t *testing.T) {
	e, ifs, _ := newTestEngine(t)

	activated := false
	entry := ifs.groups.RegisterFixed(testGroup(1))
	entry.Subscribers = append(entry.Subscribers, fakeSub{activate: func() { activated = true }})

	e.onJoin(ifs, testGroup(1))

	if !entry.Active {
		t.Fatalf("expected group to become active")
	}
	if !activated {
		t.Fatalf("expected ActivateOutbound to be invoked on the subscriber")
	}
	if !e.loop.HasTimer(timerKey{kind: timerGroupMembership, entry: entry, ifs: ifs}) {
		t.Fatalf("expected a group membership expiry timer to be armed")
	}
}

func TestLeaveSendsFirstQueryAndDecrementsBurstCounter(t *testing.T) {
	e, ifs, handle := newTestEngine(t)

	entry, _ := ifs.groups.FindOrInsert(testGroup(2))
	entry.Active = true

	e.onLeave(ifs, testGroup(2))

	if entry.GroupQueriesRemaining != ifs.qrv-1 {
		t.Fatalf("GroupQueriesRemaining = %d, want %d after first query sent", entry.GroupQueriesRemaining, ifs.qrv-1)
	}
	if len(handle.written) != 1 {
		t.Fatalf("expected exactly one group-specific query sent immediately, got %d", len(handle.written))
	}
}

func TestLeaveIgnoredWhenBurstAlreadyUnderway(t *testing.T) {
	e, ifs, handle := newTestEngine(t)

	entry, _ := ifs.groups.FindOrInsert(testGroup(3))
	entry.Active = true
	entry.GroupQueriesRemaining = 1

	e.onLeave(ifs, testGroup(3))

	if len(handle.written) != 0 {
		t.Fatalf("expected no additional query sent while a burst is already underway")
	}
}

func TestGroupExpiryDeactivatesAndCompacts(t *testing.T) {
	e, ifs, _ := newTestEngine(t)

	deactivated := false
	entry, _ := ifs.groups.FindOrInsert(testGroup(4))
	entry.Active = true
	entry.Subscribers = append(entry.Subscribers, fakeSub{deactivate: func() { deactivated = true }})

	e.onGroupExpired(ifs, entry)

	if entry.Active {
		t.Fatalf("expected entry to be inactive after expiry")
	}
	if !deactivated {
		t.Fatalf("expected DeactivateOutbound to be invoked")
	}
	if ifs.groups.DynamicCount() != 0 {
		t.Fatalf("expected Tighten to compact the trailing inactive entry")
	}
}

func TestJoinDuringLastMemberQueryBurstResetsQueryState(t *testing.T) {
	e, ifs, handle := newTestEngine(t)

	entry, _ := ifs.groups.FindOrInsert(testGroup(5))
	entry.Active = true

	e.onLeave(ifs, testGroup(5))

	if entry.GroupQueriesRemaining != ifs.qrv-1 {
		t.Fatalf("GroupQueriesRemaining = %d, want %d after leave starts a burst", entry.GroupQueriesRemaining, ifs.qrv-1)
	}
	if !e.loop.HasTimer(timerKey{kind: timerLastMemberQuery, entry: entry, ifs: ifs}) {
		t.Fatalf("expected a last-member-query retransmission timer to be armed")
	}

	e.onJoin(ifs, testGroup(5))

	if entry.GroupQueriesRemaining != 0 {
		t.Fatalf("expected GroupQueriesRemaining reset to 0 on rejoin, got %d", entry.GroupQueriesRemaining)
	}
	if e.loop.HasTimer(timerKey{kind: timerLastMemberQuery, entry: entry, ifs: ifs}) {
		t.Fatalf("expected the last-member-query timer to be canceled on rejoin")
	}
	if !e.loop.HasTimer(timerKey{kind: timerGroupMembership, entry: entry, ifs: ifs}) {
		t.Fatalf("expected a fresh group membership expiry timer to be armed")
	}

	written := len(handle.written)
	e.onLeave(ifs, testGroup(5))

	if len(handle.written) != written+1 {
		t.Fatalf("expected a new leave to send a group-specific query instead of being silently ignored")
	}
}

type fakeSub struct {
	activate   func()
	deactivate func()
}

func (f fakeSub) ActivateOutbound() {
	if f.activate != nil {
		f.activate()
	}
}

func (f fakeSub) DeactivateOutbound() {
	if f.deactivate != nil {
		f.deactivate()
	}
}
