// Package iface models a bridge instance's interfaces: their addresses,
// their static-vs-dynamic inbound/outbound configuration, and the
// activation state that couples the control plane's membership state
// machines to the data plane's forwarding loop.
package iface

import (
	"fmt"
	"net"
	"sync/atomic"
)

// Config is how an interface's inbound or outbound direction was
// configured for a bridge instance.
type Config int

const (
	// ConfigNone means the interface does not participate in this
	// direction at all: never joined, never forwarded to.
	ConfigNone Config = iota
	// ConfigStatic means the direction is always active.
	ConfigStatic
	// ConfigDynamic means the direction is activated and deactivated by
	// the IGMP/MLD membership state machines as group membership changes.
	ConfigDynamic
	// ConfigForced means the direction is always active like
	// ConfigStatic, but arrived there by promotion from ConfigDynamic
	// because some peer on the same bridge has a static outbound that
	// can never be allowed to idle. Kept distinct from ConfigStatic only
	// for logging fidelity with the reference implementation.
	ConfigForced
)

func (c Config) String() string {
	switch c {
	case ConfigNone:
		return "none"
	case ConfigStatic:
		return "static"
	case ConfigForced:
		return "forced"
	default:
		return "dynamic"
	}
}

// Interface is one bridge instance's view of one physical interface: an
// inbound socket that receives datagrams to forward, and an outbound
// handle that forwarding writes through once activated.
type Interface struct {
	Name    string
	Index   int
	MACAddr net.HardwareAddr

	IPv4Addr      net.IP
	IPv6Addr      net.IP
	IPv6LinkLocal net.IP

	InboundConfig  Config
	OutboundConfig Config

	// Sock is the bound, non-blocking UDP socket used both to receive
	// forwarded traffic (inbound) and to transmit it (outbound).
	Sock int

	inboundActive  atomic.Bool
	outboundActive atomic.Bool
}

// InboundActive reports whether the interface currently belongs to the
// bridge's inbound multicast membership.
func (in *Interface) InboundActive() bool { return in.inboundActive.Load() }

// OutboundActive reports whether the data-plane forwarding loop should
// currently write to this interface. The bridge's forwarding goroutine
// reads this with a single atomic load per packet per interface, with
// no locking against the control-plane goroutine that flips it.
func (in *Interface) OutboundActive() bool { return in.outboundActive.Load() }

// ActivateOutbound satisfies group.Handle: the membership state machine
// calls it when a registered group transitions from no active
// subscribers on this interface to one or more.
func (in *Interface) ActivateOutbound() { in.outboundActive.Store(true) }

// DeactivateOutbound satisfies group.Handle: called when the last active
// subscriber for a registered group on this interface leaves.
//
// The reference daemon additionally propagates a dynamic outbound
// deactivation to any dynamic inbound peer that no longer has any other
// active outbound peer on the bridge; bridge.Instance.syncInboundPeers
// performs that propagation, since it requires visibility into the
// whole interface set that a single Interface does not have.
func (in *Interface) DeactivateOutbound() { in.outboundActive.Store(false) }

// SetInboundActive is used directly by the bridge instance when joining
// static or forced inbound interfaces at startup, and by
// syncInboundPeers when propagating a dynamic-peer join/leave.
func (in *Interface) SetInboundActive(active bool) { in.inboundActive.Store(active) }

func (in *Interface) String() string {
	return fmt.Sprintf("%s(index=%d)", in.Name, in.Index)
}

// IPv4AddrBytes returns the interface's primary IPv4 address as a
// fixed-size array, for use as a comparable querier-election address.
func (in *Interface) IPv4AddrBytes() [4]byte {
	var a [4]byte
	copy(a[:], in.IPv4Addr.To4())
	return a
}

// IPv6AddrBytes returns the interface's primary IPv6 address (preferring
// the global/unique-local address over the link-local one) as a
// fixed-size array.
func (in *Interface) IPv6AddrBytes() [16]byte {
	var a [16]byte
	if in.IPv6Addr != nil {
		copy(a[:], in.IPv6Addr.To16())
	} else {
		copy(a[:], in.IPv6LinkLocal.To16())
	}
	return a
}
