package config

import (
	"fmt"
	"testing"
)

func fakeResolver(known map[string]int) InterfaceResolver {
	return func(name string) (int, error) {
		if idx, ok := known[name]; ok {
			return idx, nil
		}
		return 0, fmt.Errorf("interface %q does not exist", name)
	}
}

func TestResolveAndValidateAppliesDefaults(t *testing.T) {
	f := &File{
		Bridges: []Bridge{{
			Port:        5000,
			IPv4Address: "239.1.1.1",
			Interfaces:  []InterfaceEntry{{Name: "eth0", Inbound: DirectionStatic}},
		}},
	}

	cfg, err := resolveAndValidate(f, fakeResolver(map[string]int{"eth0": 2}))
	if err != nil {
		t.Fatalf("resolveAndValidate: %v", err)
	}
	if cfg.NonConfiguredGroups != defaultNonConfiguredGroups {
		t.Errorf("NonConfiguredGroups = %d, want default %d", cfg.NonConfiguredGroups, defaultNonConfiguredGroups)
	}
	if cfg.IGMPQuerierMode != QuerierQuick || cfg.MLDQuerierMode != QuerierQuick {
		t.Errorf("querier modes = %s/%s, want quick/quick", cfg.IGMPQuerierMode, cfg.MLDQuerierMode)
	}
	if len(cfg.Bridges) != 1 || cfg.Bridges[0].Interfaces[0].Index != 2 {
		t.Errorf("bridge resolution = %+v", cfg.Bridges)
	}
}

func TestResolveAndValidateRejectsNoAddress(t *testing.T) {
	f := &File{Bridges: []Bridge{{Port: 5000, Interfaces: []InterfaceEntry{{Name: "eth0", Inbound: DirectionStatic}}}}}

	if _, err := resolveAndValidate(f, fakeResolver(nil)); err == nil {
		t.Fatalf("expected an error for a bridge with no multicast address")
	}
}

func TestResolveAndValidateRejectsLinkLocalMulticast(t *testing.T) {
	f := &File{
		Bridges: []Bridge{{
			Port:        5000,
			IPv4Address: "224.0.0.5",
			Interfaces:  []InterfaceEntry{{Name: "eth0", Inbound: DirectionStatic}},
		}},
	}

	if _, err := resolveAndValidate(f, fakeResolver(map[string]int{"eth0": 1})); err == nil {
		t.Fatalf("expected an error for a link-local multicast address")
	}
}

func TestResolveAndValidateRejectsUnresolvedInterface(t *testing.T) {
	f := &File{
		Bridges: []Bridge{{
			Port:        5000,
			IPv4Address: "239.1.1.1",
			Interfaces:  []InterfaceEntry{{Name: "eth9", Inbound: DirectionStatic}},
		}},
	}

	if _, err := resolveAndValidate(f, fakeResolver(nil)); err == nil {
		t.Fatalf("expected an error for an interface that does not resolve")
	}
}

func TestResolveAndValidateRejectsInterfaceWithNoDirection(t *testing.T) {
	f := &File{
		Bridges: []Bridge{{
			Port:        5000,
			IPv4Address: "239.1.1.1",
			Interfaces:  []InterfaceEntry{{Name: "eth0"}},
		}},
	}

	if _, err := resolveAndValidate(f, fakeResolver(map[string]int{"eth0": 1})); err == nil {
		t.Fatalf("expected an error for an interface with neither direction configured")
	}
}

func TestResolveAndValidateRejectsNegativeGroupLimit(t *testing.T) {
	f := &File{
		NonConfiguredGroups: -1,
		Bridges: []Bridge{{
			Port:        5000,
			IPv4Address: "239.1.1.1",
			Interfaces:  []InterfaceEntry{{Name: "eth0", Inbound: DirectionStatic}},
		}},
	}

	if _, err := resolveAndValidate(f, fakeResolver(map[string]int{"eth0": 1})); err == nil {
		t.Fatalf("expected an error for a negative non-configured-groups")
	}
}
