//go:build darwin || freebsd

package iface

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// BindIPv4 mirrors socket_linux.go's implementation, substituting
// IP_BOUND_IF for SO_BINDTODEVICE, which BSD and Darwin lack.
func (in *Interface) BindIPv4(port uint16) error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return fmt.Errorf("iface %s: socket(AF_INET): %w", in.Name, err)
	}

	if err := setReuseAndBind(sock, in.Index); err != nil {
		unix.Close(sock)
		return err
	}

	if err := unix.SetsockoptInt(sock, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, 1); err != nil {
		unix.Close(sock)
		return fmt.Errorf("iface %s: setsockopt(IP_MULTICAST_TTL): %w", in.Name, err)
	}

	var mreq [4]byte
	copy(mreq[:], in.IPv4Addr.To4())
	if err := unix.SetsockoptInet4Addr(sock, unix.IPPROTO_IP, unix.IP_MULTICAST_IF, mreq); err != nil {
		unix.Close(sock)
		return fmt.Errorf("iface %s: setsockopt(IP_MULTICAST_IF): %w", in.Name, err)
	}

	if err := unix.SetsockoptInt(sock, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, 0); err != nil {
		unix.Close(sock)
		return fmt.Errorf("iface %s: setsockopt(IP_MULTICAST_LOOP): %w", in.Name, err)
	}

	sa := &unix.SockaddrInet4{Port: int(port)}
	if err := unix.Bind(sock, sa); err != nil {
		unix.Close(sock)
		return fmt.Errorf("iface %s: bind: %w", in.Name, err)
	}

	if err := unix.SetNonblock(sock, true); err != nil {
		unix.Close(sock)
		return fmt.Errorf("iface %s: set nonblocking: %w", in.Name, err)
	}

	in.Sock = sock
	return nil
}

// BindIPv6 is the IPv6 analog of BindIPv4.
func (in *Interface) BindIPv6(port uint16) error {
	sock, err := unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return fmt.Errorf("iface %s: socket(AF_INET6): %w", in.Name, err)
	}

	_ = unix.SetsockoptInt(sock, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1)

	if err := setReuseAndBind(sock, in.Index); err != nil {
		unix.Close(sock)
		return err
	}

	if err := unix.SetsockoptInt(sock, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, 1); err != nil {
		unix.Close(sock)
		return fmt.Errorf("iface %s: setsockopt(IPV6_UNICAST_HOPS): %w", in.Name, err)
	}

	if err := unix.SetsockoptInt(sock, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_IF, in.Index); err != nil {
		unix.Close(sock)
		return fmt.Errorf("iface %s: setsockopt(IPV6_MULTICAST_IF): %w", in.Name, err)
	}

	if err := unix.SetsockoptInt(sock, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_LOOP, 0); err != nil {
		unix.Close(sock)
		return fmt.Errorf("iface %s: setsockopt(IPV6_MULTICAST_LOOP): %w", in.Name, err)
	}

	sa := &unix.SockaddrInet6{Port: int(port)}
	if err := unix.Bind(sock, sa); err != nil {
		unix.Close(sock)
		return fmt.Errorf("iface %s: bind: %w", in.Name, err)
	}

	if err := unix.SetNonblock(sock, true); err != nil {
		unix.Close(sock)
		return fmt.Errorf("iface %s: set nonblocking: %w", in.Name, err)
	}

	in.Sock = sock
	return nil
}

func setReuseAndBind(sock, index int) error {
	if err := unix.SetsockoptInt(sock, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("setsockopt(SO_REUSEADDR): %w", err)
	}
	if err := unix.SetsockoptInt(sock, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return fmt.Errorf("setsockopt(SO_REUSEPORT): %w", err)
	}
	if err := unix.SetsockoptInt(sock, unix.IPPROTO_IP, unix.IP_BOUND_IF, index); err != nil {
		return fmt.Errorf("setsockopt(IP_BOUND_IF): %w", err)
	}
	return nil
}
