package wire

import "encoding/binary"

// IPv4MulticastMAC derives the Ethernet multicast address for an IPv4
// group: 01:00:5e followed by the low 23 bits of the group address.
func IPv4MulticastMAC(group [4]byte) [6]byte {
	return [6]byte{0x01, 0x00, 0x5e, group[1] & 0x7f, group[2], group[3]}
}

// IPv6MulticastMAC derives the Ethernet multicast address for an IPv6
// group: 33:33 followed by the low 32 bits of the group address.
func IPv6MulticastMAC(group [16]byte) [6]byte {
	return [6]byte{0x33, 0x33, group[12], group[13], group[14], group[15]}
}

// PutEthernetHeader writes a 14-byte Ethernet header into buf[0:14].
func PutEthernetHeader(buf []byte, dst, src [6]byte, ethType uint16) {
	copy(buf[0:6], dst[:])
	copy(buf[6:12], src[:])
	binary.BigEndian.PutUint16(buf[12:14], ethType)
}

// EthernetType reads the type field from a 14-byte Ethernet header.
func EthernetType(buf []byte) uint16 {
	return binary.BigEndian.Uint16(buf[12:14])
}
