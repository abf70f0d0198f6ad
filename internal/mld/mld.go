// Package mld implements the MLDv1/v2 control plane: querier election,
// group membership tracking, and multicast router discovery, for every
// IPv6 interface registered with the engine. Structurally this mirrors
// internal/igmp; the differences are ICMPv6 framing, 16-byte addresses,
// millisecond (rather than tenths-of-a-second) timer units, and the
// absence of an MLDv1-host compatibility mode — MLDv1 plays the role
// IGMPv2 plays, not IGMPv1, so there is nothing analogous to
// onV1HostSeen to track.
package mld

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

// pollInterval mirrors internal/igmp's: gopacket/pcap exposes no portable
// selectable descriptor, so ingress is a self-rearming timer in the same
// event loop rather than socket readiness.
const pollInterval = 20 * time.Millisecond

const (
	defaultRobustness = wire.MLDDefaultRobustness
	queryIntervalSec  = wire.MLDDefaultQueryInterval
	maxRespMillis     = wire.MLDDefaultResponseInterval
	lastMbrMillis     = wire.MLDDefaultLastMbrInterval
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
	timerMRD
	timerPoll
)

type timerKey struct {
	kind  timerKind
	entry *group.Entry[[16]byte]
	ifs   *ifaceState
}

// packetHandle is the subset of *pcap.Handle the engine needs. Tests
// substitute a fake to exercise membership and querier logic without a
// live capture device.
type packetHandle interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	WritePacketData(data []byte) error
}

// ifaceState is one interface's MLD state: its querier election status,
// its group table, and its capture handle.
type ifaceState struct {
	in     *iface.Interface
	groups *group.Table[[16]byte]
	handle packetHandle

	mode        config.QuerierMode
	state       querierState
	querierAddr [16]byte
	qrv         int
	qqicSec     int
	respMillis  int

	generalQueriesLeft int
}

// Engine is the MLD control plane for the whole host: one event loop,
// one goroutine, covering every registered IPv6 interface.
type Engine struct {
	loop       *evm.Loop
	log        *slog.Logger
	metrics    *metrics.Membership
	mode       config.QuerierMode
	maxDynamic int

	interfaces []*ifaceState
}

// New creates an MLD engine. maxDynamic bounds each interface's dynamic
// group suffix (the configured non-configured-groups value).
func New(mode config.QuerierMode, maxDynamic int, m *metrics.Membership, log *slog.Logger) (*Engine, error) {
	loop, err := evm.New(0, 4*64, log)
	if err != nil {
		return nil, fmt.Errorf("mld: %w", err)
	}
	return &Engine{loop: loop, log: log, metrics: m, mode: mode, maxDynamic: maxDynamic}, nil
}

func isMLDLinkLocal(addr [16]byte) bool {
	return addr[0] == 0xff && addr[1] == 0x02
}

// RegisterInterface satisfies bridge.Engine: it is called once per
// dynamic outbound interface at init, before Run starts.
func (e *Engine) RegisterInterface(in *iface.Interface) {
	for _, existing := range e.interfaces {
		if existing.in == in {
			return
		}
	}
	e.interfaces = append(e.interfaces, e.newIfaceState(in))
}

// RegisterGroup ensures a fixed-prefix entry for groupAddr on the
// interface owning handle, and adds handle as a subscriber.
func (e *Engine) RegisterGroup(in *iface.Interface, groupAddr net.IP, handle group.Handle) {
	ifs := e.findOrCreate(in)

	var addr [16]byte
	copy(addr[:], groupAddr.To16())

	entry := ifs.groups.RegisterFixed(addr)
	entry.Subscribers = append(entry.Subscribers, handle)
}

func (e *Engine) findOrCreate(in *iface.Interface) *ifaceState {
	for _, ifs := range e.interfaces {
		if ifs.in == in {
			return ifs
		}
	}
	ifs := e.newIfaceState(in)
	e.interfaces = append(e.interfaces, ifs)
	return ifs
}

func (e *Engine) newIfaceState(in *iface.Interface) *ifaceState {
	return &ifaceState{
		in:         in,
		groups:     group.New[[16]byte](e.maxDynamic, isMLDLinkLocal),
		mode:       e.mode,
		qrv:        defaultRobustness,
		qqicSec:    queryIntervalSec,
		respMillis: maxRespMillis,
	}
}

// Run opens a capture handle for every registered interface, arms
// startup state for each, and blocks running the event loop until ctx
// is canceled.
func (e *Engine) Run(ctx context.Context) error {
	for _, ifs := range e.interfaces {
		handle, err := openCapture(ifs.in.Name)
		if err != nil {
			return fmt.Errorf("mld: interface %s: %w", ifs.in.Name, err)
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

// handleFrame parses an Ethernet+IPv6+ICMPv6 frame and dispatches it.
func (e *Engine) handleFrame(ifs *ifaceState, frame []byte) {
	if len(frame) < wire.EthernetHeaderLen {
		return
	}
	if wire.EthernetType(frame) != wire.EthernetTypeIPv6 {
		return
	}

	ipBuf := frame[wire.EthernetHeaderLen:]
	hdr, payloadOff, ok := wire.ParseIPv6WithHopByHopRA(ipBuf)
	if !ok {
		e.log.Debug("mld: dropping frame with bad IPv6 header or missing router alert", "interface", ifs.in.Name)
		e.metrics.AddDropped("mld", ifs.in.Name, metrics.DropNoRouterAlert)
		return
	}
	if hdr.NextHeader != wire.IPv6ProtocolICMPv6 {
		return
	}
	if hdr.Src == ifs.in.IPv6AddrBytes() {
		return
	}

	payload := ipBuf[payloadOff : payloadOff+hdr.PayloadLen]
	decoded, ok := wire.ParseMLD(payload, hdr.Src, hdr.Dst)
	if !ok {
		e.log.Debug("mld: dropping frame with bad MLD checksum or length", "interface", ifs.in.Name)
		e.metrics.AddDropped("mld", ifs.in.Name, metrics.DropBadChecksum)
		return
	}

	switch decoded.Kind {
	case wire.MLDKindQuery:
		e.onQueryObserved(ifs, hdr.Src, decoded)
	case wire.MLDKindV1Report:
		e.onJoin(ifs, decoded.Group)
	case wire.MLDKindV1Done:
		e.onLeave(ifs, decoded.Group)
	case wire.MLDKindV2Report:
		e.onV2Report(ifs, decoded)
	case wire.MLDKindMRDSolicitation:
		e.onMRDSolicitation(ifs)
	}
}

// onV2Report applies each group record in order. An unrecognized record
// type aborts processing of the rest of the report, retaining whatever
// join/leave effects already-processed records produced.
func (e *Engine) onV2Report(ifs *ifaceState, decoded wire.MLDDecoded) {
	for _, rec := range decoded.V2Records {
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
			e.log.Debug("mld: unknown group record type, abandoning report", "interface", ifs.in.Name, "type", rec.Type)
			e.metrics.AddDropped("mld", ifs.in.Name, metrics.DropUnknownRecord)
			return
		}
	}
	if decoded.V2Truncated {
		e.log.Debug("mld: group record data overrun, trailing records discarded")
		e.metrics.AddDropped("mld", ifs.in.Name, metrics.DropRecordOverrun)
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
			filter := "ip6 && ip6[40] == 58 && (ip6[48] == 130 || ip6[48] == 131 || ip6[48] == 132 || ip6[48] == 143 || ip6[48] == 152)"
			if err := handle.SetBPFFilter(filter); err != nil {
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
