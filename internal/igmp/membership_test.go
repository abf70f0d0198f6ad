package igmp

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

// fakeHandle discards every write and never has data to read, letting
// tests exercise send paths without a live capture device.
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
		Name:     "eth0",
		Index:    2,
		IPv4Addr: net.IPv4(192, 0, 2, 1),
		MACAddr:  net.HardwareAddr{0, 1, 2, 3, 4, 5},
	}
	handle := &fakeHandle{}
	ifs := &ifaceState{
		in:         in,
		groups:     group.New[[4]byte](4, isIGMPLinkLocal),
		handle:     handle,
		mode:       config.QuerierQuick,
		qrv:        defaultRobustness,
		qqicSec:    queryIntervalSec,
		respTenths: maxRespTenths,
		state:      stateActive,
	}
	e.interfaces = append(e.interfaces, ifs)

	return e, ifs, handle
}

func TestJoinActivatesGroupAndSubscribers(t *testing.T) {
	e, ifs, _ := newTestEngine(t)

	activated := false
	entry := ifs.groups.RegisterFixed([4]byte{239, 1, 1, 1})
	entry.Subscribers = append(entry.Subscribers, fakeSub{activate: func() { activated = true }})

	e.onJoin(ifs, [4]byte{239, 1, 1, 1})

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

func TestLeaveIgnoredWhenV1HostPresent(t *testing.T) {
	e, ifs, handle := newTestEngine(t)

	entry, _ := ifs.groups.FindOrInsert([4]byte{239, 1, 1, 1})
	entry.Active = true
	entry.V1HostPresent = true

	e.onLeave(ifs, [4]byte{239, 1, 1, 1})

	if entry.GroupQueriesRemaining != 0 {
		t.Fatalf("expected no last-member burst while a v1 host is present")
	}
	if len(handle.written) != 0 {
		t.Fatalf("expected no group-specific query to be sent")
	}
}

func TestLeaveSendsFirstQueryAndDecrementsBurstCounter(t *testing.T) {
	e, ifs, handle := newTestEngine(t)

	entry, _ := ifs.groups.FindOrInsert([4]byte{239, 1, 1, 2})
	entry.Active = true

	e.onLeave(ifs, [4]byte{239, 1, 1, 2})

	if entry.GroupQueriesRemaining != ifs.qrv-1 {
		t.Fatalf("GroupQueriesRemaining = %d, want %d after first query sent", entry.GroupQueriesRemaining, ifs.qrv-1)
	}
	if len(handle.written) != 1 {
		t.Fatalf("expected exactly one group-specific query sent immediately, got %d", len(handle.written))
	}
}

func TestGroupExpiryDeactivatesAndCompacts(t *testing.T) {
	e, ifs, _ := newTestEngine(t)

	deactivated := false
	entry, _ := ifs.groups.FindOrInsert([4]byte{239, 1, 1, 3})
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

	entry, _ := ifs.groups.FindOrInsert([4]byte{239, 1, 1, 4})
	entry.Active = true

	e.onLeave(ifs, [4]byte{239, 1, 1, 4})

	if entry.GroupQueriesRemaining != ifs.qrv-1 {
		t.Fatalf("GroupQueriesRemaining = %d, want %d after leave starts a burst", entry.GroupQueriesRemaining, ifs.qrv-1)
	}
	if !e.loop.HasTimer(timerKey{kind: timerLastMemberQuery, entry: entry, ifs: ifs}) {
		t.Fatalf("expected a last-member-query retransmission timer to be armed")
	}

	e.onJoin(ifs, [4]byte{239, 1, 1, 4})

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
	e.onLeave(ifs, [4]byte{239, 1, 1, 4})

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
