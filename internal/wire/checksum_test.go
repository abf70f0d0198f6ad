package wire

import "testing"

func TestInetChecksumRoundTrip(t *testing.T) {
	buf := make([]byte, IGMPHeaderLen)
	group := [4]byte{239, 0, 75, 0}
	PutIGMPv2Message(buf, IGMPV2Report, group)

	if got := InetChecksum(buf); got != 0 {
		t.Fatalf("InetChecksum of a generated IGMP report = %#x, want 0", got)
	}
}

func TestInetChecksumOddLength(t *testing.T) {
	buf := []byte{0x45, 0x00, 0x01}
	csum := InetChecksum(buf)
	// The odd trailing byte is summed as if followed by a zero pad byte, so
	// the checksum word goes after an explicit zero to stay 16-bit aligned.
	padded := append(append([]byte{}, buf...), 0, byte(csum>>8), byte(csum))
	if got := InetChecksum(padded); got != 0 {
		t.Fatalf("InetChecksum with zero pad and appended checksum = %#x, want 0", got)
	}
}

func TestInet6ChecksumRoundTrip(t *testing.T) {
	var src, dst [16]byte
	src[0], src[1] = 0xfe, 0x80
	src[15] = 0x01
	dst[0], dst[1] = 0xff, 0x02
	dst[15] = 0x01

	buf := make([]byte, MLDHeaderLen)
	group := [16]byte{0xff, 0x02}
	PutMLDv1Message(buf, MLDV1Report, group, src, dst)

	if got := Inet6Checksum(buf, src, dst, IPv6ProtocolICMPv6); got != 0 {
		t.Fatalf("Inet6Checksum of a generated MLD report = %#x, want 0", got)
	}
}

func TestIGMPv3QueryChecksum(t *testing.T) {
	buf := make([]byte, IGMPv3QueryBaseLen)
	PutIGMPv3Query(buf, [4]byte{}, 100, false, 2, 0)
	if got := InetChecksum(buf); got != 0 {
		t.Fatalf("InetChecksum of a generated v3 query = %#x, want 0", got)
	}

	PatchIGMPv3QueryGroupAndS(buf, [4]byte{239, 0, 75, 0}, true, 2)
	if got := InetChecksum(buf); got != 0 {
		t.Fatalf("InetChecksum after patch = %#x, want 0", got)
	}
	if buf[8]&0x08 == 0 {
		t.Fatalf("S flag not set after patch")
	}
}

func TestIPv4MulticastMAC(t *testing.T) {
	mac := IPv4MulticastMAC([4]byte{239, 0, 75, 9})
	want := [6]byte{0x01, 0x00, 0x5e, 0x00, 75, 9}
	if mac != want {
		t.Fatalf("IPv4MulticastMAC = %v, want %v", mac, want)
	}
}

func TestIPv6MulticastMAC(t *testing.T) {
	group := [16]byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x12, 0x34, 0x56, 0x78}
	mac := IPv6MulticastMAC(group)
	want := [6]byte{0x33, 0x33, 0x12, 0x34, 0x56, 0x78}
	if mac != want {
		t.Fatalf("IPv6MulticastMAC = %v, want %v", mac, want)
	}
}
