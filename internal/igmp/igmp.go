// Package igmp implements the IGMPv1/v2/v3 control plane: querier
// election, group membership tracking, and multicast router discovery,
// for every interface registered with the engine. One Engine owns one
// goroutine and one event loop, covering every IGMP-speaking interface
// on the host.
package igmp

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/dennypage/mcast-bridge/internal/config"
	"github.com/dennypage/mcast-bridge/internal/evm"
	"github.com/dennypage/mcast-bridge/internal/group"
	"github.com/dennypage/mcast-bridge/internal/iface"
	"github.com/dennypage/mcast-bridge/internal/metrics"
	"github.com/dennypage/mcast-bridge/internal/wire"
)

// pollInterval is how often the engine polls each interface's capture
// handle for a pending packet. gopacket/pcap does not expose a portable
// selectable file descriptor, so ingress is driven by a self-rearming
// timer in the same event loop rather than socket readiness.
const pollInterval = 20 * time.Millisecond

// querier constants, tenths-of-a-second and second units per RFC 3376.
const (
	defaultRobustness = wire.IGMPDefaultRobustness
	queryIntervalSec  = wire.IGMPDefaultQueryInterval
	maxRespTenths     = wire.IGMPDefaultResponseInterval
	lastMbrTenths     = wire.IGMPDefaultLastMbrInterval
	graceMillis       = 10
	delayedActivation = 125500 * time.Millisecond
)

type querierState int

const (
	statePassive querierState = iota
	stateActive
)

type timerKind int

const (
	timerGeneralQuery timerKind = iota
	timerOtherQuerierPresent
	timerGroupMembership
	timerLastMemberQuery
	timerV1HostPresent
	timerMRD
	timerPoll
)

type timerKey struct {
	kind  timerKind
	entry *group.Entry[[4]byte]
	ifs   *ifaceState
}

// packetHandle is the subset of *pcap.Handle the engine needs. Tests
// substitute a fake to exercise membership and querier logic without a
// live capture device.
type packetHandle interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	WritePacketData(data []byte) error
}

// ifaceState is one interface's IGMP state: its querier election
// status, its group table, and its capture handle.
type ifaceState struct {
	in     *iface.Interface
	groups *group.Table[[4]byte]
	handle packetHandle

	mode        config.QuerierMode
	state       querierState
	querierAddr [4]byte
	qrv         int
	qqicSec     int
	respTenths  int

	generalQueriesLeft int
}

// Engine is the IGMP control plane for the whole host: one event loop,
// one goroutine, covering every registered interface.
type Engine struct {
	loop       *evm.Loop
	log        *slog.Logger
	metrics    *metrics.Membership
	mode       config.QuerierMode
	maxDynamic int

	interfaces []*ifaceState
}

// New creates an IGMP engine. maxDynamic bounds each interface's
// dynamic group suffix (the configured non-configured-groups value).
func New(mode config.QuerierMode, maxDynamic int, m *metrics.Membership, log *slog.Logger) (*Engine, error) {
	loop, err := evm.New(0, 4*64, log)
	if err != nil {
		return nil, fmt.Errorf("igmp: %w", err)
	}
	return &Engine{loop: loop, log: log, metrics: m, mode: mode, maxDynamic: maxDynamic}, nil
}

func isIGMPLinkLocal(addr [4]byte) bool {
	return addr[0] == 224 && addr[1] == 0 && addr[2] == 0
}

// RegisterInterface satisfies bridge.Engine: it is called once per
// dynamic outbound interface at init, before Run starts.
func (e *Engine) RegisterInterface(in *iface.Interface) {
	for _, existing := range e.interfaces {
		if existing.in == in {
			return
		}
	}

	ifs := &ifaceState{
		in:         in,
		groups:     group.New[[4]byte](e.maxDynamic, isIGMPLinkLocal),
		mode:       e.mode,
		qrv:        defaultRobustness,
		qqicSec:    queryIntervalSec,
		respTenths: maxRespTenths,
	}
	e.interfaces = append(e.interfaces, ifs)
}

// RegisterGroup ensures a fixed-prefix entry for groupAddr on the
// interface owning handle, and adds handle as a subscriber.
func (e *Engine) RegisterGroup(in *iface.Interface, groupAddr net.IP, handle group.Handle) {
	ifs := e.findOrCreate(in)

	var addr [4]byte
	copy(addr[:], groupAddr.To4())

	entry := ifs.groups.RegisterFixed(addr)
	entry.Subscribers = append(entry.Subscribers, handle)
}

func (e *Engine) findOrCreate(in *iface.Interface) *ifaceState {
	for _, ifs := range e.interfaces {
		if ifs.in == in {
			return ifs
		}
	}
	ifs := &ifaceState{
		in:         in,
		groups:     group.New[[4]byte](e.maxDynamic, isIGMPLinkLocal),
		mode:       e.mode,
		qrv:        defaultRobustness,
		qqicSec:    queryIntervalSec,
		respTenths: maxRespTenths,
	}
	e.interfaces = append(e.interfaces, ifs)
	return ifs
}

// Run opens a capture handle for every registered interface, arms
// startup state for each, and blocks running the event loop until ctx
// is canceled.
func (e *Engine) Run(ctx context.Context) error {
	for _, ifs := range e.interfaces {
		handle, err := openCapture(ifs.in.Name)
		if err != nil {
			return fmt.Errorf("igmp: interface %s: %w", ifs.in.Name, err)
		}
		ifs.handle = handle

		e.armPoll(ifs)
		e.startQuerier(ifs)
		e.startMRD(ifs)
	}

	return e.loop.Run(ctx)
}

func (e *Engine) armPoll(ifs *ifaceState) {
	e.loop.AddTimer(int(pollInterval/time.Millisecond), timerKey{kind: timerPoll, ifs: ifs}, func() {
		e.pollOnce(ifs)
		e.armPoll(ifs)
	})
}

func (e *Engine) pollOnce(ifs *ifaceState) {
	data, ok := readNonBlocking(ifs.handle)
	if !ok {
		return
	}
	e.handleFrame(ifs, data)
}

// handleFrame parses an Ethernet+IPv4+IGMP frame and dispatches it.
func (e *Engine) handleFrame(ifs *ifaceState, frame []byte) {
	if len(frame) < wire.EthernetHeaderLen {
		return
	}
	if wire.EthernetType(frame) != wire.EthernetTypeIPv4 {
		return
	}

	ipBuf := frame[wire.EthernetHeaderLen:]
	hdr, payloadOff, ok := wire.ParseIPv4WithRouterAlert(ipBuf)
	if !ok {
		e.log.Debug("igmp: dropping frame with bad IP header or missing router alert", "interface", ifs.in.Name)
		e.metrics.AddDropped("igmp", ifs.in.Name, metrics.DropNoRouterAlert)
		return
	}
	if hdr.Protocol != wire.IPv4ProtocolIGMP {
		return
	}
	if net.IP(hdr.Src[:]).Equal(ifs.in.IPv4Addr) {
		return
	}

	payload := ipBuf[payloadOff:hdr.TotalLen]
	decoded, ok := wire.ParseIGMP(payload)
	if !ok {
		e.log.Debug("igmp: dropping frame with bad IGMP checksum or length", "interface", ifs.in.Name)
		e.metrics.AddDropped("igmp", ifs.in.Name, metrics.DropBadChecksum)
		return
	}

	switch decoded.Kind {
	case wire.IGMPKindQuery:
		e.onQueryObserved(ifs, hdr.Src, decoded)
	case wire.IGMPKindV1Report:
		e.onJoin(ifs, decoded.Group)
		e.onV1HostSeen(ifs, decoded.Group)
	case wire.IGMPKindV2Report:
		e.onJoin(ifs, decoded.Group)
	case wire.IGMPKindV2Leave:
		e.onLeave(ifs, decoded.Group)
	case wire.IGMPKindV3Report:
		e.onV3Report(ifs, decoded)
	case wire.IGMPKindMRDSolicitation:
		e.onMRDSolicitation(ifs)
	}
}

// onV3Report applies each group record in order. An unrecognized record
// type aborts processing of the rest of the report, retaining whatever
// join/leave effects already-processed records produced.
func (e *Engine) onV3Report(ifs *ifaceState, decoded wire.IGMPDecoded) {
	for _, rec := range decoded.V3Records {
		switch rec.Type {
		case wire.RecModeIsInclude, wire.RecChangeToInclude:
			if rec.NumSrcs > 0 {
				e.onJoin(ifs, rec.Group)
			} else {
				e.onLeave(ifs, rec.Group)
			}
		case wire.RecModeIsExclude, wire.RecChangeToExclude, wire.RecAllowNewSources:
			e.onJoin(ifs, rec.Group)
		case wire.RecBlockOldSources:
			if rec.NumSrcs == 0 {
				e.onLeave(ifs, rec.Group)
			}
		default:
			e.log.Debug("igmp: unknown group record type, abandoning report", "interface", ifs.in.Name, "type", rec.Type)
			e.metrics.AddDropped("igmp", ifs.in.Name, metrics.DropUnknownRecord)
			return
		}
	}
	if decoded.V3Truncated {
		e.log.Debug("igmp: v3 report truncated, trailing records discarded")
		e.metrics.AddDropped("igmp", ifs.in.Name, metrics.DropRecordOverrun)
	}
}

func readNonBlocking(handle packetHandle) ([]byte, bool) {
	data, _, err := handle.ReadPacketData()
	if err != nil {
		return nil, false
	}
	return data, true
}

func openCapture(name string) (*pcap.Handle, error) {
	const maxAttempts = 5
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		handle, err := pcap.OpenLive(name, 65535, true, pollInterval)
		if err == nil {
			if err := handle.SetBPFFilter("igmp"); err != nil {
				handle.Close()
				return nil, fmt.Errorf("setting bpf filter: %w", err)
			}
			return handle, nil
		}
		lastErr = err
		time.Sleep(backoff)
	}
	return nil, fmt.Errorf("opening capture after %d attempts: %w", maxAttempts, lastErr)
}

func randomJitter(maxMillis int) time.Duration {
	return time.Duration(rand.Intn(maxMillis)) * time.Millisecond
}
