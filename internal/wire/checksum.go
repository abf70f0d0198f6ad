// Package wire implements byte-exact builders and parsers for the Ethernet,
// IPv4, IPv6, IGMP, MLD and MRD frames used by the control plane.
package wire

import "encoding/binary"

// InetChecksum computes the one's-complement internet checksum (RFC 1071)
// of data, treating it as a sequence of big-endian 16-bit words with a
// trailing odd byte padded with zero.
func InetChecksum(data []byte) uint16 {
	var sum uint32

	n := len(data)
	i := 0
	for ; n-i > 1; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if i < n {
		sum += uint32(data[i]) << 8
	}

	sum = (sum >> 16) + (sum & 0xffff)
	sum += sum >> 16

	return ^uint16(sum)
}

// Inet6Checksum computes the ICMPv6 checksum over data using the RFC 2460
// pseudo-header built from src, dst and nextHeader. src and dst must be
// 16-byte IPv6 addresses.
func Inet6Checksum(data []byte, src, dst [16]byte, nextHeader uint8) uint16 {
	var sum uint32

	for i := 0; i < 16; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(src[i : i+2]))
	}
	for i := 0; i < 16; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(dst[i : i+2]))
	}

	var pseudo [8]byte
	binary.BigEndian.PutUint32(pseudo[0:4], uint32(len(data)))
	pseudo[7] = nextHeader
	for i := 0; i < 8; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(pseudo[i : i+2]))
	}

	n := len(data)
	i := 0
	for ; n-i > 1; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if i < n {
		sum += uint32(data[i]) << 8
	}

	sum = (sum >> 16) + (sum & 0xffff)
	sum += sum >> 16

	return ^uint16(sum)
}
