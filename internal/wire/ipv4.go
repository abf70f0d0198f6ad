package wire

import "encoding/binary"

// IPv4HeaderWithRA is the fixed 24-byte length of an IPv4 header carrying
// the Router Alert option (IHL 6, 20-byte base header + 4-byte option).
const IPv4HeaderWithRA = IPv4HeaderLen + IPv4RouterAlertOptLen

// PutIPv4HeaderWithRouterAlert writes a 24-byte IPv4 header (base header
// plus Router Alert option) into buf[0:24]. payloadLen is the length of
// the protocol payload following the header. The IP checksum is computed
// and written. ttl is always 1 for control-plane traffic per the wire
// format; callers pass it explicitly for clarity at call sites.
func PutIPv4HeaderWithRouterAlert(buf []byte, src, dst [4]byte, protocol uint8, ttl uint8, payloadLen int) {
	totalLen := IPv4HeaderWithRA + payloadLen

	buf[0] = 0x40 | byte(IPv4HeaderWithRA/4) // version 4, IHL in 32-bit words
	buf[1] = IPv4TOSInternetControl
	binary.BigEndian.PutUint16(buf[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(buf[4:6], 0) // identification
	binary.BigEndian.PutUint16(buf[6:8], IPv4FlagDF)
	buf[8] = ttl
	buf[9] = protocol
	binary.BigEndian.PutUint16(buf[10:12], 0) // checksum, filled below
	copy(buf[12:16], src[:])
	copy(buf[16:20], dst[:])

	// Router Alert option: type 0x94, length 4, value 0.
	buf[20] = IPv4OptRouterAlert
	buf[21] = 4
	binary.BigEndian.PutUint16(buf[22:24], 0)

	csum := InetChecksum(buf[:IPv4HeaderWithRA])
	binary.BigEndian.PutUint16(buf[10:12], csum)
}

// PatchIPv4Checksum recomputes and rewrites the IPv4 header checksum over
// buf[0:headerLen] after a mutable field (e.g. destination address) has
// been patched in place.
func PatchIPv4Checksum(buf []byte, headerLen int) {
	binary.BigEndian.PutUint16(buf[10:12], 0)
	csum := InetChecksum(buf[:headerLen])
	binary.BigEndian.PutUint16(buf[10:12], csum)
}

// IPv4ParsedHeader is a decoded IPv4 header with Router Alert verification
// already performed.
type IPv4ParsedHeader struct {
	HeaderLen int
	TotalLen  int
	Protocol  uint8
	Src       [4]byte
	Dst       [4]byte
}

// ParseIPv4WithRouterAlert parses an IPv4 header from buf, verifying the
// header checksum and the presence of a Router Alert option. It returns
// the parsed header and the byte offset of the protocol payload.
func ParseIPv4WithRouterAlert(buf []byte) (hdr IPv4ParsedHeader, payloadOffset int, ok bool) {
	if len(buf) < IPv4HeaderLen {
		return IPv4ParsedHeader{}, 0, false
	}

	headerLen := int(buf[0]&0x0f) * 4
	if headerLen < IPv4HeaderLen || len(buf) < headerLen {
		return IPv4ParsedHeader{}, 0, false
	}

	if InetChecksum(buf[:headerLen]) != 0 {
		return IPv4ParsedHeader{}, 0, false
	}

	totalLen := int(binary.BigEndian.Uint16(buf[2:4]))
	if totalLen > len(buf) {
		return IPv4ParsedHeader{}, 0, false
	}

	if !ipv4HasRouterAlert(buf[IPv4HeaderLen:headerLen]) {
		return IPv4ParsedHeader{}, 0, false
	}

	var src, dst [4]byte
	copy(src[:], buf[12:16])
	copy(dst[:], buf[16:20])

	hdr = IPv4ParsedHeader{
		HeaderLen: headerLen,
		TotalLen:  totalLen,
		Protocol:  buf[9],
		Src:       src,
		Dst:       dst,
	}
	return hdr, headerLen, true
}

func ipv4HasRouterAlert(options []byte) bool {
	for i := 0; i+4 <= len(options); {
		optType := options[i]
		if optType == 0 { // end of options
			break
		}
		if optType == 1 { // no-op
			i++
			continue
		}
		optLen := int(options[i+1])
		if optLen < 2 || i+optLen > len(options) {
			return false
		}
		if optType == IPv4OptRouterAlert {
			return true
		}
		i += optLen
	}
	return false
}
