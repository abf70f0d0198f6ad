package wire

import "encoding/binary"

// IPv6HopByHopRALen is the length of the Hop-by-Hop extension header
// carrying the Router Alert option followed by a PadN option, padded to
// the 8-byte boundary: 2 bytes (next header + header ext len) + 2 bytes
// Router Alert option header + 2 bytes Router Alert value + 2 bytes PadN.
const IPv6HopByHopRALen = 8

// PutIPv6HeaderWithHopByHopRA writes a 40-byte IPv6 header followed by an
// 8-byte Hop-by-Hop Router Alert extension header into buf[0:48].
// payloadLen is the length of the payload following the extension header
// (e.g. the ICMPv6/MLD body).
func PutIPv6HeaderWithHopByHopRA(buf []byte, src, dst [16]byte, nextHeader uint8, payloadLen int) {
	binary.BigEndian.PutUint32(buf[0:4], 0x60000000) // version 6, traffic class 0, flow label 0
	binary.BigEndian.PutUint16(buf[4:6], uint16(IPv6HopByHopRALen+payloadLen))
	buf[6] = IPv6NextHeaderHop
	buf[7] = 1 // hop limit
	copy(buf[8:24], src[:])
	copy(buf[24:40], dst[:])

	hbh := buf[40:48]
	hbh[0] = nextHeader
	hbh[1] = 0 // header extension length 0 (8 bytes total)
	// Router Alert option: option 5, length 2, value 0.
	hbh[2] = IPv6OptRouterAlert
	hbh[3] = 2
	binary.BigEndian.PutUint16(hbh[4:6], 0)
	// PadN option padding the remaining 2 bytes.
	hbh[6] = IPv6OptPadN
	hbh[7] = 0
}

// IPv6ParsedHeader is a decoded IPv6 header with the Hop-by-Hop Router
// Alert extension already verified and consumed.
type IPv6ParsedHeader struct {
	PayloadLen int
	NextHeader uint8
	Src        [16]byte
	Dst        [16]byte
}

// ParseIPv6WithHopByHopRA parses an IPv6 header and its mandatory
// Hop-by-Hop Router Alert extension header from buf. It returns the
// parsed header (NextHeader is the header following the extension) and
// the byte offset of that payload.
func ParseIPv6WithHopByHopRA(buf []byte) (hdr IPv6ParsedHeader, payloadOffset int, ok bool) {
	if len(buf) < IPv6HeaderLen {
		return IPv6ParsedHeader{}, 0, false
	}

	var src, dst [16]byte
	copy(src[:], buf[8:24])
	copy(dst[:], buf[24:40])

	payloadLen := int(binary.BigEndian.Uint16(buf[4:6]))
	if IPv6HeaderLen+payloadLen > len(buf) {
		return IPv6ParsedHeader{}, 0, false
	}

	if buf[6] != IPv6NextHeaderHop {
		return IPv6ParsedHeader{}, 0, false
	}

	if payloadLen < IPv6HopByHopRALen {
		return IPv6ParsedHeader{}, 0, false
	}

	hbh := buf[IPv6HeaderLen : IPv6HeaderLen+IPv6HopByHopRALen]
	if hbh[1] != 0 {
		return IPv6ParsedHeader{}, 0, false
	}
	// NB: the order of RA and PadN options is not guaranteed.
	if hbh[2] != IPv6OptRouterAlert && hbh[4] != IPv6OptRouterAlert {
		return IPv6ParsedHeader{}, 0, false
	}

	hdr = IPv6ParsedHeader{
		PayloadLen: payloadLen - IPv6HopByHopRALen,
		NextHeader: hbh[0],
		Src:        src,
		Dst:        dst,
	}
	return hdr, IPv6HeaderLen + IPv6HopByHopRALen, true
}
