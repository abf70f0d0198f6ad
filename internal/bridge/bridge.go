// Package bridge implements the data-plane forwarding loop: one
// goroutine per bridge instance (an address family and UDP port),
// relaying datagrams received on any active inbound interface out to
// every active outbound peer interface. It also owns the startup
// activation pass and the dynamic inbound/outbound coupling that the
// IGMP and MLD control planes drive at runtime, grounded on the
// reference implementation's initialize_interfaces and
// interface_activate_outbound / interface_deactivate_outbound.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sys/unix"

	"github.com/dennypage/mcast-bridge/internal/evm"
	"github.com/dennypage/mcast-bridge/internal/group"
	"github.com/dennypage/mcast-bridge/internal/iface"
)

// maxPacketSize bounds a single datagram read, matching the reference
// daemon's fixed receive buffer.
const maxPacketSize = 65535

// Counters is the subset of metrics the forwarding loop updates. It is
// satisfied by *metrics.Bridge; defined here to avoid a dependency from
// bridge on the metrics package's Prometheus types.
type Counters interface {
	AddForwarded(bytes int)
	AddDropped()
}

// Engine is satisfied by *igmp.Engine and *mld.Engine: the
// membership-tracking control plane a dynamic outbound interface
// registers with, so that group activity on that interface activates
// and deactivates it.
type Engine interface {
	RegisterInterface(in *iface.Interface)
	RegisterGroup(in *iface.Interface, groupAddr net.IP, handle group.Handle)
}

// Instance is one bridge: an address family, UDP port, destination
// multicast group, and the set of interfaces that may send to or
// receive from it.
type Instance struct {
	Family     int // unix.AF_INET or unix.AF_INET6
	Port       uint16
	GroupAddr  net.IP
	Interfaces []*iface.Interface

	Log      *slog.Logger
	Counters Counters
}

// Init binds each interface's socket, then performs the reference
// implementation's two-pass startup activation: every non-dynamic
// inbound interface joins the group immediately, and every outbound
// interface is either registered with reg (if dynamic, so the matching
// IGMP or MLD engine drives its activation) or activated immediately
// (if static or forced).
func (b *Instance) Init(reg Engine) error {
	for _, in := range b.Interfaces {
		var err error
		if b.Family == unix.AF_INET {
			err = in.BindIPv4(b.Port)
		} else {
			err = in.BindIPv6(b.Port)
		}
		if err != nil {
			return fmt.Errorf("bridge %s/%d: %w", familyString(b.Family), b.Port, err)
		}
	}

	for _, in := range b.Interfaces {
		if in.InboundConfig == iface.ConfigStatic || in.InboundConfig == iface.ConfigForced {
			b.ActivateInbound(in)
		}
	}

	for _, in := range b.Interfaces {
		switch in.OutboundConfig {
		case iface.ConfigDynamic:
			reg.RegisterInterface(in)
			reg.RegisterGroup(in, b.GroupAddr, &outboundHandle{bridge: b, in: in})
		case iface.ConfigStatic, iface.ConfigForced:
			b.activateOutbound(in)
		}
	}

	return nil
}

// Run starts the instance's event loop and blocks until ctx is
// canceled. One Instance occupies one goroutine, matching the
// reference daemon's one-thread-per-bridge-instance model.
func (b *Instance) Run(ctx context.Context) error {
	loop, err := evm.New(len(b.Interfaces), 0, b.Log)
	if err != nil {
		return fmt.Errorf("bridge %s/%d: %w", familyString(b.Family), b.Port, err)
	}

	buf := make([]byte, maxPacketSize)

	for _, in := range b.Interfaces {
		in := in
		if err := loop.AddSocket(in.Sock, func() { b.receive(in, buf) }); err != nil {
			return fmt.Errorf("bridge %s/%d: %w", familyString(b.Family), b.Port, err)
		}
	}

	return loop.Run(ctx)
}

// receive drains one datagram from in's socket and forwards it to
// every other interface whose outbound direction is currently active.
func (b *Instance) receive(in *iface.Interface, buf []byte) {
	n, _, err := unix.Recvfrom(in.Sock, buf, 0)
	if err != nil {
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			b.Log.Warn("recvfrom failed", "interface", in.Name, "error", err)
		}
		return
	}

	if !in.InboundActive() {
		return
	}

	for _, peer := range b.Interfaces {
		if peer == in || !peer.OutboundActive() {
			continue
		}

		dst := b.destAddr(peer)
		if err := unix.Sendto(peer.Sock, buf[:n], 0, dst); err != nil {
			b.Log.Warn("sendto failed", "interface", peer.Name, "error", err)
			if b.Counters != nil {
				b.Counters.AddDropped()
			}
			continue
		}

		if b.Counters != nil {
			b.Counters.AddForwarded(n)
		}
	}
}

// destAddr builds the destination sockaddr for the group on peer,
// setting the IPv6 scope ID to peer's interface index where applicable.
func (b *Instance) destAddr(peer *iface.Interface) unix.Sockaddr {
	if b.Family == unix.AF_INET {
		sa := &unix.SockaddrInet4{Port: int(b.Port)}
		copy(sa.Addr[:], b.GroupAddr.To4())
		return sa
	}

	sa := &unix.SockaddrInet6{Port: int(b.Port), ZoneId: uint32(peer.Index)}
	copy(sa.Addr[:], b.GroupAddr.To16())
	return sa
}

// ActivateInbound joins in's socket to the bridge's multicast group and
// marks it active. It is idempotent, matching
// interface_activate_inbound.
func (b *Instance) ActivateInbound(in *iface.Interface) {
	if in.InboundActive() {
		return
	}

	var err error
	if b.Family == unix.AF_INET {
		err = iface.JoinIPv4(in.Sock, in.Index, b.GroupAddr)
	} else {
		err = iface.JoinIPv6(in.Sock, in.Index, b.GroupAddr)
	}
	if err != nil {
		b.logWarn("join multicast group failed", in, err)
	}

	b.logDebug("activating inbound interface", in, in.InboundConfig)
	in.SetInboundActive(true)
}

// DeactivateInbound drops in's socket from the bridge's multicast group
// and marks it inactive. It refuses to act on a non-dynamic interface,
// matching interface_deactivate_inbound's guard against deactivating an
// interface that must always stay joined.
func (b *Instance) DeactivateInbound(in *iface.Interface) {
	if !in.InboundActive() {
		return
	}
	if in.InboundConfig != iface.ConfigDynamic {
		b.logWarnf("deactivating non-dynamic inbound interface %s", in.Name)
		return
	}

	var err error
	if b.Family == unix.AF_INET {
		err = iface.LeaveIPv4(in.Sock, in.Index, b.GroupAddr)
	} else {
		err = iface.LeaveIPv6(in.Sock, in.Index, b.GroupAddr)
	}
	if err != nil {
		b.logWarn("leave multicast group failed", in, err)
	}

	b.logDebug("deactivating inbound interface", in, in.InboundConfig)
	in.SetInboundActive(false)
}

// activateOutbound marks in's outbound direction active and propagates
// the activation to its dynamic inbound peers, matching
// interface_activate_outbound. It is idempotent.
func (b *Instance) activateOutbound(in *iface.Interface) {
	if in.OutboundActive() {
		return
	}
	in.ActivateOutbound()
	b.logDebug("activating outbound interface", in, in.OutboundConfig)
	b.syncInboundPeers(in, true)
}

// deactivateOutbound marks in's outbound direction inactive and
// propagates the deactivation to any dynamic inbound peer that no
// longer has any other active outbound peer, matching
// interface_deactivate_outbound. It refuses to act on a non-dynamic
// interface and is idempotent.
func (b *Instance) deactivateOutbound(in *iface.Interface) {
	if !in.OutboundActive() {
		return
	}
	if in.OutboundConfig != iface.ConfigDynamic {
		b.logWarnf("deactivating non-dynamic outbound interface %s", in.Name)
		return
	}
	in.DeactivateOutbound()
	b.logDebug("deactivating outbound interface", in, in.OutboundConfig)
	b.syncInboundPeers(in, false)
}

// syncInboundPeers propagates an outbound activation or deactivation on
// in to every dynamic-inbound peer on the same bridge. Activating
// always (re)joins the peer; deactivating only leaves the group if no
// other interface on the bridge still has an active outbound.
func (b *Instance) syncInboundPeers(in *iface.Interface, activated bool) {
	for _, peer := range b.Interfaces {
		if peer == in || peer.InboundConfig != iface.ConfigDynamic {
			continue
		}

		if activated {
			b.ActivateInbound(peer)
			continue
		}

		stillNeeded := false
		for _, other := range b.Interfaces {
			if other == peer {
				continue
			}
			if other.OutboundActive() {
				stillNeeded = true
				break
			}
		}
		if !stillNeeded {
			b.DeactivateInbound(peer)
		}
	}
}

// outboundHandle adapts one bridge interface's outbound direction to
// group.Handle so the owning IGMP or MLD engine can activate and
// deactivate it as group membership on that interface changes, while
// still routing through the bridge's peer-sync logic.
type outboundHandle struct {
	bridge *Instance
	in     *iface.Interface
}

func (h *outboundHandle) ActivateOutbound()   { h.bridge.activateOutbound(h.in) }
func (h *outboundHandle) DeactivateOutbound() { h.bridge.deactivateOutbound(h.in) }

func (b *Instance) logDebug(msg string, in *iface.Interface, cfg iface.Config) {
	if b.Log == nil {
		return
	}
	b.Log.Debug(msg, "bridge", familyString(b.Family), "port", b.Port, "interface", in.Name, "config", cfg.String())
}

func (b *Instance) logWarn(msg string, in *iface.Interface, err error) {
	if b.Log == nil {
		return
	}
	b.Log.Warn(msg, "bridge", familyString(b.Family), "port", b.Port, "interface", in.Name, "error", err)
}

func (b *Instance) logWarnf(format string, args ...any) {
	if b.Log == nil {
		return
	}
	b.Log.Warn(fmt.Sprintf(format, args...), "bridge", familyString(b.Family), "port", b.Port)
}

func familyString(family int) string {
	if family == unix.AF_INET {
		return "ipv4"
	}
	return "ipv6"
}
