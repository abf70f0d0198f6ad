// Package config loads and validates the daemon's YAML configuration,
// resolving interface names against the live interface table the way
// the reference implementation's config loader does against its
// ifaddrs(3) snapshot.
package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// QuerierMode selects one of the four querier election behaviors.
type QuerierMode string

const (
	QuerierNever QuerierMode = "never"
	QuerierQuick QuerierMode = "quick"
	QuerierDelay QuerierMode = "delay"
	QuerierDefer QuerierMode = "defer"
)

func (m QuerierMode) valid() bool {
	switch m {
	case QuerierNever, QuerierQuick, QuerierDelay, QuerierDefer:
		return true
	}
	return false
}

// Direction is how one interface participates in one bridge instance's
// inbound or outbound direction.
type Direction string

const (
	DirectionUnset   Direction = ""
	DirectionStatic  Direction = "static"
	DirectionDynamic Direction = "dynamic"

	// DirectionForced is never set directly from YAML; resolveBridge
	// promotes a dynamic inbound interface to it when some other
	// interface on the same bridge has a static outbound, mirroring the
	// reference implementation's validate_draft_bridge: a static
	// outbound peer always needs data, so the dynamic inbound side that
	// feeds it can never be allowed to idle.
	DirectionForced Direction = "forced"
)

// InterfaceEntry is one interface line within a bridge's interface
// list.
type InterfaceEntry struct {
	Name     string    `yaml:"name"`
	Inbound  Direction `yaml:"inbound"`
	Outbound Direction `yaml:"outbound"`
}

// Bridge is one bridge instance: a UDP port and the multicast group(s)
// it repeats, plus the interfaces that participate.
type Bridge struct {
	Port        uint16           `yaml:"port"`
	IPv4Address string           `yaml:"ipv4-address"`
	IPv6Address string           `yaml:"ipv6-address"`
	Interfaces  []InterfaceEntry `yaml:"interfaces"`
}

// File is the top-level YAML document.
type File struct {
	NonConfiguredGroups int         `yaml:"non-configured-groups"`
	IGMPQuerierMode     QuerierMode `yaml:"igmp-querier-mode"`
	MLDQuerierMode      QuerierMode `yaml:"mld-querier-mode"`
	Bridges             []Bridge    `yaml:"bridges"`
}

// Config is the validated, address-parsed result of loading a File.
type Config struct {
	NonConfiguredGroups int
	IGMPQuerierMode     QuerierMode
	MLDQuerierMode      QuerierMode
	Bridges             []ResolvedBridge
}

// ResolvedBridge is a Bridge with its addresses parsed and its
// interface names resolved against the live interface table.
type ResolvedBridge struct {
	Port        uint16
	IPv4Address net.IP
	IPv6Address net.IP
	Interfaces  []ResolvedInterface
}

// ResolvedInterface is an InterfaceEntry with its kernel index looked
// up.
type ResolvedInterface struct {
	Name     string
	Index    int
	Inbound  Direction
	Outbound Direction
}

// InterfaceResolver looks up a named interface's kernel index,
// satisfied in production by net.InterfaceByName and by a fake table in
// tests.
type InterfaceResolver func(name string) (index int, err error)

const defaultNonConfiguredGroups = 100

// Load reads path, parses it as YAML, and validates and resolves it
// against resolve.
func Load(path string, resolve InterfaceResolver) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return resolveAndValidate(&f, resolve)
}

func resolveAndValidate(f *File, resolve InterfaceResolver) (*Config, error) {
	cfg := &Config{
		NonConfiguredGroups: f.NonConfiguredGroups,
		IGMPQuerierMode:     f.IGMPQuerierMode,
		MLDQuerierMode:      f.MLDQuerierMode,
	}

	if cfg.NonConfiguredGroups == 0 {
		cfg.NonConfiguredGroups = defaultNonConfiguredGroups
	}
	if cfg.NonConfiguredGroups < 0 {
		return nil, fmt.Errorf("non-configured-groups must be nonnegative, got %d", cfg.NonConfiguredGroups)
	}

	if cfg.IGMPQuerierMode == "" {
		cfg.IGMPQuerierMode = QuerierQuick
	}
	if !cfg.IGMPQuerierMode.valid() {
		return nil, fmt.Errorf("invalid igmp-querier-mode %q", cfg.IGMPQuerierMode)
	}
	if cfg.MLDQuerierMode == "" {
		cfg.MLDQuerierMode = QuerierQuick
	}
	if !cfg.MLDQuerierMode.valid() {
		return nil, fmt.Errorf("invalid mld-querier-mode %q", cfg.MLDQuerierMode)
	}

	if len(f.Bridges) == 0 {
		return nil, fmt.Errorf("no bridges configured")
	}

	for i, b := range f.Bridges {
		rb, err := resolveBridge(b, resolve)
		if err != nil {
			return nil, fmt.Errorf("bridge %d (port %d): %w", i, b.Port, err)
		}
		cfg.Bridges = append(cfg.Bridges, rb)
	}

	return cfg, nil
}

func resolveBridge(b Bridge, resolve InterfaceResolver) (ResolvedBridge, error) {
	rb := ResolvedBridge{Port: b.Port}

	if b.IPv4Address == "" && b.IPv6Address == "" {
		return rb, fmt.Errorf("needs at least one of ipv4-address or ipv6-address")
	}

	if b.IPv4Address != "" {
		addr := net.ParseIP(b.IPv4Address).To4()
		if addr == nil {
			return rb, fmt.Errorf("invalid ipv4-address %q", b.IPv4Address)
		}
		if !addr.IsMulticast() {
			return rb, fmt.Errorf("ipv4-address %q is not multicast", b.IPv4Address)
		}
		if isIPv4LinkLocalMulticast(addr) {
			return rb, fmt.Errorf("ipv4-address %q is link-local (224.0.0.0/24)", b.IPv4Address)
		}
		rb.IPv4Address = addr
	}

	if b.IPv6Address != "" {
		addr := net.ParseIP(b.IPv6Address)
		if addr == nil || addr.To4() != nil {
			return rb, fmt.Errorf("invalid ipv6-address %q", b.IPv6Address)
		}
		if !addr.IsMulticast() {
			return rb, fmt.Errorf("ipv6-address %q is not multicast", b.IPv6Address)
		}
		if isIPv6LinkLocalMulticast(addr) {
			return rb, fmt.Errorf("ipv6-address %q is link-local (ff02::/16)", b.IPv6Address)
		}
		rb.IPv6Address = addr
	}

	if len(b.Interfaces) == 0 {
		return rb, fmt.Errorf("needs at least one interface")
	}

	for _, ie := range b.Interfaces {
		if ie.Inbound == DirectionUnset && ie.Outbound == DirectionUnset {
			return rb, fmt.Errorf("interface %q needs at least one of inbound or outbound configured", ie.Name)
		}

		index, err := resolve(ie.Name)
		if err != nil {
			return rb, fmt.Errorf("interface %q: %w", ie.Name, err)
		}

		rb.Interfaces = append(rb.Interfaces, ResolvedInterface{
			Name:     ie.Name,
			Index:    index,
			Inbound:  ie.Inbound,
			Outbound: ie.Outbound,
		})
	}

	forceDynamicInboundPeers(rb.Interfaces)

	return rb, nil
}

// forceDynamicInboundPeers promotes every dynamic-inbound interface to
// forced whenever some other interface on the bridge has a static
// outbound: a static outbound peer is never deactivated, so any
// dynamic inbound interface feeding it must never be allowed to leave
// the group either.
func forceDynamicInboundPeers(interfaces []ResolvedInterface) {
	for outboundIdx := range interfaces {
		if interfaces[outboundIdx].Outbound != DirectionStatic {
			continue
		}
		for inboundIdx := range interfaces {
			if inboundIdx == outboundIdx {
				continue
			}
			if interfaces[inboundIdx].Inbound == DirectionDynamic {
				interfaces[inboundIdx].Inbound = DirectionForced
			}
		}
	}
}

func isIPv4LinkLocalMulticast(addr net.IP) bool {
	return addr[0] == 224 && addr[1] == 0 && addr[2] == 0
}

func isIPv6LinkLocalMulticast(addr net.IP) bool {
	return addr[0] == 0xff && addr[1] == 0x02
}

// DefaultResolver resolves a name via the host's live interface table.
func DefaultResolver(name string) (int, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return 0, fmt.Errorf("interface %q does not exist", name)
	}
	if iface.Flags&net.FlagUp == 0 {
		return 0, fmt.Errorf("interface %q is not up", name)
	}
	if iface.Flags&net.FlagMulticast == 0 {
		return 0, fmt.Errorf("interface %q does not support multicast", name)
	}
	return iface.Index, nil
}
