// Package metrics exposes the daemon's Prometheus counters and gauges:
// per-bridge forwarding counts, and per-interface group table occupancy
// and querier state, grounded on the same quantities the reference
// daemon already tracks internally for its debug logging.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Bridge holds the counters for one bridge instance's data plane.
type Bridge struct {
	forwarded      prometheus.Counter
	forwardedBytes prometheus.Counter
	dropped        prometheus.Counter
}

// NewBridge registers and returns the counters for one bridge instance,
// labeled by address family and UDP port.
func NewBridge(reg prometheus.Registerer, family string, port uint16) *Bridge {
	labels := prometheus.Labels{"family": family, "port": portLabel(port)}

	b := &Bridge{
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mcast_bridge",
			Subsystem:   "forward",
			Name:        "packets_total",
			Help:        "Datagrams forwarded between bridge interfaces.",
			ConstLabels: labels,
		}),
		forwardedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mcast_bridge",
			Subsystem:   "forward",
			Name:        "bytes_total",
			Help:        "Bytes forwarded between bridge interfaces.",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mcast_bridge",
			Subsystem:   "forward",
			Name:        "dropped_total",
			Help:        "Datagrams dropped due to a send error.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(b.forwarded, b.forwardedBytes, b.dropped)
	return b
}

// AddForwarded records one forwarded datagram of n bytes.
func (b *Bridge) AddForwarded(n int) {
	b.forwarded.Inc()
	b.forwardedBytes.Add(float64(n))
}

// AddDropped records one forwarding failure.
func (b *Bridge) AddDropped() {
	b.dropped.Inc()
}

// Membership holds the per-interface group table gauges and drop
// counters shared by the IGMP and MLD engines.
type Membership struct {
	GroupsActive  *prometheus.GaugeVec
	GroupsFixed   *prometheus.GaugeVec
	QuerierActive *prometheus.GaugeVec
	Dropped       *prometheus.CounterVec
}

// Drop reasons recorded against the Dropped counter vector. These mirror
// the reference implementation's debug_level >= 2 anomaly log lines one
// for one, giving each a machine-readable counterpart.
const (
	DropShortHeader   = "short_header"
	DropBadChecksum   = "bad_checksum"
	DropNoRouterAlert = "no_router_alert"
	DropUnknownType   = "unknown_type"
	DropTableFull     = "table_full"
	DropRecordOverrun = "record_overrun"
	DropUnknownRecord = "unknown_record"
)

// NewMembership registers and returns the membership gauge vectors,
// labeled by protocol ("igmp" or "mld") and interface name.
func NewMembership(reg prometheus.Registerer) *Membership {
	m := &Membership{
		GroupsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mcast_bridge",
			Subsystem: "membership",
			Name:      "groups_active",
			Help:      "Currently active multicast groups per interface.",
		}, []string{"protocol", "interface"}),
		GroupsFixed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mcast_bridge",
			Subsystem: "membership",
			Name:      "groups_fixed",
			Help:      "Registered (fixed-prefix) groups per interface.",
		}, []string{"protocol", "interface"}),
		QuerierActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mcast_bridge",
			Subsystem: "querier",
			Name:      "active",
			Help:      "1 if this host is the elected querier on the interface, else 0.",
		}, []string{"protocol", "interface"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcast_bridge",
			Subsystem: "membership",
			Name:      "dropped_total",
			Help:      "Ingress packets dropped, by protocol, interface and reason.",
		}, []string{"protocol", "interface", "reason"}),
	}

	reg.MustRegister(m.GroupsActive, m.GroupsFixed, m.QuerierActive, m.Dropped)
	return m
}

// AddDropped increments the drop counter for protocol/interface/reason.
// A nil receiver is a silent no-op so call sites need not guard every
// call the way they do for the log sink.
func (m *Membership) AddDropped(protocol, iface, reason string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(protocol, iface, reason).Inc()
}

func portLabel(port uint16) string {
	return strconv.Itoa(int(port))
}
