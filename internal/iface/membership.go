package iface

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// JoinIPv4 adds sock's IPv4 multicast membership for group on the
// interface identified by index, via ipv4.PacketConn.JoinGroup rather
// than a raw IP_ADD_MEMBERSHIP setsockopt.
func JoinIPv4(sock, index int, group net.IP) error {
	return withIPv4PacketConn(sock, func(pc *ipv4.PacketConn) error {
		nif, err := net.InterfaceByIndex(index)
		if err != nil {
			return err
		}
		return pc.JoinGroup(nif, &net.UDPAddr{IP: group})
	})
}

// LeaveIPv4 drops sock's IPv4 multicast membership for group on index.
func LeaveIPv4(sock, index int, group net.IP) error {
	return withIPv4PacketConn(sock, func(pc *ipv4.PacketConn) error {
		nif, err := net.InterfaceByIndex(index)
		if err != nil {
			return err
		}
		return pc.LeaveGroup(nif, &net.UDPAddr{IP: group})
	})
}

// JoinIPv6 adds sock's IPv6 multicast membership for group on index.
func JoinIPv6(sock, index int, group net.IP) error {
	return withIPv6PacketConn(sock, func(pc *ipv6.PacketConn) error {
		nif, err := net.InterfaceByIndex(index)
		if err != nil {
			return err
		}
		return pc.JoinGroup(nif, &net.UDPAddr{IP: group})
	})
}

// LeaveIPv6 drops sock's IPv6 multicast membership for group on index.
func LeaveIPv6(sock, index int, group net.IP) error {
	return withIPv6PacketConn(sock, func(pc *ipv6.PacketConn) error {
		nif, err := net.InterfaceByIndex(index)
		if err != nil {
			return err
		}
		return pc.LeaveGroup(nif, &net.UDPAddr{IP: group})
	})
}

func withIPv4PacketConn(sock int, fn func(*ipv4.PacketConn) error) error {
	pc, closeFn, err := dupPacketConn(sock)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ipv4.NewPacketConn(pc))
}

func withIPv6PacketConn(sock int, fn func(*ipv6.PacketConn) error) error {
	pc, closeFn, err := dupPacketConn(sock)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ipv6.NewPacketConn(pc))
}

// dupPacketConn wraps a duplicate of sock as a net.PacketConn so the
// x/net/ipv4 and x/net/ipv6 group-membership calls have something to
// operate on without taking ownership of the caller's own bound,
// non-blocking socket.
func dupPacketConn(sock int) (net.PacketConn, func(), error) {
	dup, err := unix.Dup(sock)
	if err != nil {
		return nil, nil, fmt.Errorf("dup socket: %w", err)
	}

	f := os.NewFile(uintptr(dup), "")
	pc, err := net.FilePacketConn(f)
	f.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("wrap socket: %w", err)
	}
	return pc, func() { pc.Close() }, nil
}
