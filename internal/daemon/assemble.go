package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/dennypage/mcast-bridge/internal/bridge"
	"github.com/dennypage/mcast-bridge/internal/config"
	"github.com/dennypage/mcast-bridge/internal/iface"
	"github.com/dennypage/mcast-bridge/internal/igmp"
	"github.com/dennypage/mcast-bridge/internal/metrics"
	"github.com/dennypage/mcast-bridge/internal/mld"
)

// Daemon is the fully wired process: the IGMP and MLD control-plane
// engines, and one bridge.Instance per configured address family per
// bridge, ready to run.
type Daemon struct {
	log     *slog.Logger
	igmp    *igmp.Engine
	mld     *mld.Engine
	bridges []*bridge.Instance
}

// Build loads no configuration itself; it takes an already-resolved
// cfg and constructs every interface, bridge instance and control-plane
// engine it names, registering each one's Prometheus metrics against
// reg. Nothing is activated or bound until Init is called per bridge,
// which happens here as the last step of assembly, matching main.c's
// initialize_interfaces running before the engines start.
func Build(cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (*Daemon, error) {
	membership := metrics.NewMembership(reg)

	igmpEngine, err := igmp.New(cfg.IGMPQuerierMode, cfg.NonConfiguredGroups, membership, log)
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	mldEngine, err := mld.New(cfg.MLDQuerierMode, cfg.NonConfiguredGroups, membership, log)
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	d := &Daemon{log: log, igmp: igmpEngine, mld: mldEngine}

	for _, rb := range cfg.Bridges {
		if rb.IPv4Address != nil {
			inst, err := buildInstance(rb, unix.AF_INET, rb.IPv4Address, reg)
			if err != nil {
				return nil, err
			}
			inst.Log = log
			if err := inst.Init(igmpEngine); err != nil {
				return nil, err
			}
			d.bridges = append(d.bridges, inst)
		}

		if rb.IPv6Address != nil {
			inst, err := buildInstance(rb, unix.AF_INET6, rb.IPv6Address, reg)
			if err != nil {
				return nil, err
			}
			inst.Log = log
			if err := inst.Init(mldEngine); err != nil {
				return nil, err
			}
			d.bridges = append(d.bridges, inst)
		}
	}

	return d, nil
}

func buildInstance(rb config.ResolvedBridge, family int, group net.IP, reg prometheus.Registerer) (*bridge.Instance, error) {
	inst := &bridge.Instance{
		Family:    family,
		Port:      rb.Port,
		GroupAddr: group,
		Counters:  metrics.NewBridge(reg, familyLabel(family), rb.Port),
	}

	for _, ri := range rb.Interfaces {
		in, err := iface.Resolve(ri.Name)
		if err != nil {
			return nil, fmt.Errorf("bridge port %d: %w", rb.Port, err)
		}
		in.Index = ri.Index
		in.InboundConfig = configKind(ri.Inbound)
		in.OutboundConfig = configKind(ri.Outbound)
		inst.Interfaces = append(inst.Interfaces, in)
	}

	return inst, nil
}

func configKind(d config.Direction) iface.Config {
	switch d {
	case config.DirectionStatic:
		return iface.ConfigStatic
	case config.DirectionDynamic:
		return iface.ConfigDynamic
	case config.DirectionForced:
		return iface.ConfigForced
	default:
		return iface.ConfigNone
	}
}

func familyLabel(family int) string {
	if family == unix.AF_INET {
		return "ipv4"
	}
	return "ipv6"
}

// Run starts the IGMP engine, the MLD engine, and every bridge
// instance, each in its own goroutine, and blocks until ctx is canceled
// or one of them returns an error, at which point the rest are
// canceled too.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.igmp.Run(ctx) })
	g.Go(func() error { return d.mld.Run(ctx) })
	for _, inst := range d.bridges {
		inst := inst
		g.Go(func() error { return inst.Run(ctx) })
	}

	return g.Wait()
}
