package iface

import (
	"fmt"
	"net"
)

// Resolve builds an Interface record for the named, already-validated
// host interface: its kernel index, hardware address, and primary
// IPv4/IPv6 addresses. Address classification mirrors the reference
// implementation's preference for a global/unique-local address over a
// link-local one: IPv4 link-local is 169.254.0.0/16, IPv6 link-local is
// fe80::/10.
func Resolve(name string) (*Interface, error) {
	nif, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface %q: %w", name, err)
	}

	addrs, err := nif.Addrs()
	if err != nil {
		return nil, fmt.Errorf("interface %q: listing addresses: %w", name, err)
	}

	in := &Interface{
		Name:    nif.Name,
		Index:   nif.Index,
		MACAddr: nif.HardwareAddr,
	}

	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP

		if v4 := ip.To4(); v4 != nil {
			if in.IPv4Addr == nil || isIPv4LinkLocal(in.IPv4Addr) {
				in.IPv4Addr = v4
			}
			continue
		}

		if ip.IsLinkLocalUnicast() {
			if in.IPv6LinkLocal == nil {
				in.IPv6LinkLocal = ip
			}
			continue
		}
		if in.IPv6Addr == nil {
			in.IPv6Addr = ip
		}
	}

	return in, nil
}

func isIPv4LinkLocal(ip net.IP) bool {
	v4 := ip.To4()
	return v4 != nil && v4[0] == 169 && v4[1] == 254
}
