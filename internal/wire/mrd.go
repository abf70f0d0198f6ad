package wire

import "encoding/binary"

// PutMRDAdvertisement writes an 8-byte Multicast Router Discovery
// advertisement body (shared layout between IGMP and MLD) into buf.
func PutMRDAdvertisement(buf []byte, msgType uint8, intervalSec uint8, qqi, qrv uint16) {
	buf[0] = msgType
	buf[1] = intervalSec
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[4:6], qqi)
	binary.BigEndian.PutUint16(buf[6:8], qrv)

	csum := InetChecksum(buf[:MRDAdvertisementLen])
	binary.BigEndian.PutUint16(buf[2:4], csum)
}

// PutMRDAdvertisement6 is the ICMPv6 variant: the checksum covers the
// IPv6 pseudo-header in addition to the advertisement body.
func PutMRDAdvertisement6(buf []byte, msgType uint8, intervalSec uint8, qqi, qrv uint16, src, dst [16]byte) {
	buf[0] = msgType
	buf[1] = intervalSec
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[4:6], qqi)
	binary.BigEndian.PutUint16(buf[6:8], qrv)

	csum := Inet6Checksum(buf[:MRDAdvertisementLen], src, dst, IPv6ProtocolICMPv6)
	binary.BigEndian.PutUint16(buf[2:4], csum)
}

// PutMRDSolicitation writes a 4-byte Multicast Router Discovery
// solicitation body into buf (never emitted by this daemon; kept for
// completeness of the shared MRD codec surface).
func PutMRDSolicitation(buf []byte, msgType uint8) {
	buf[0] = msgType
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], 0)
}
