package wire

import "encoding/binary"

// IGMPGeneralQueryLen is the wire length of a v3 general/group-specific
// query with no source list (the only form this daemon ever emits).
const IGMPGeneralQueryLen = IGMPv3QueryBaseLen

// PutIGMPv3Query writes a 12-byte IGMPv3 membership query (no source
// list) into buf. group is the all-zero address for a general query, or
// the target group for a group-specific query. The checksum is computed
// and written.
func PutIGMPv3Query(buf []byte, group [4]byte, maxRespCode uint8, sFlag bool, qrv uint8, qqic uint8) {
	buf[0] = IGMPQuery
	buf[1] = maxRespCode
	binary.BigEndian.PutUint16(buf[2:4], 0) // checksum, filled below
	copy(buf[4:8], group[:])

	flags := qrv & 0x07
	if sFlag {
		flags |= 0x08
	}
	buf[8] = flags
	buf[9] = qqic
	binary.BigEndian.PutUint16(buf[10:12], 0) // num_srcs

	csum := InetChecksum(buf[:IGMPv3QueryBaseLen])
	binary.BigEndian.PutUint16(buf[2:4], csum)
}

// PatchIGMPv3QueryGroupAndS rewrites the group address and S flag of an
// already-built query template in place and recomputes its checksum.
// qrv is re-supplied because the S flag shares a byte with it.
func PatchIGMPv3QueryGroupAndS(buf []byte, group [4]byte, sFlag bool, qrv uint8) {
	copy(buf[4:8], group[:])
	flags := qrv & 0x07
	if sFlag {
		flags |= 0x08
	}
	buf[8] = flags

	binary.BigEndian.PutUint16(buf[2:4], 0)
	csum := InetChecksum(buf[:IGMPv3QueryBaseLen])
	binary.BigEndian.PutUint16(buf[2:4], csum)
}

// PutIGMPv2Message writes an 8-byte IGMPv1/v2-style message (report or
// leave share this layout) into buf.
func PutIGMPv2Message(buf []byte, msgType uint8, group [4]byte) {
	buf[0] = msgType
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], 0)
	copy(buf[4:8], group[:])

	csum := InetChecksum(buf[:IGMPHeaderLen])
	binary.BigEndian.PutUint16(buf[2:4], csum)
}

// IGMPDecoded is a tagged decode result for an IGMP message.
type IGMPDecoded struct {
	Kind  IGMPKind
	Group [4]byte

	// Query fields (Kind == IGMPKindQuery).
	IsGeneralQuery bool
	MaxRespCode    uint8
	SFlag          bool
	QRV            uint8
	QQIC           uint8

	// Report fields (Kind == IGMPKindV3Report).
	V3Records   []IGMPv3GroupRecord
	V3Truncated bool
}

type IGMPKind int

const (
	IGMPKindUnknown IGMPKind = iota
	IGMPKindQuery
	IGMPKindV1Report
	IGMPKindV2Report
	IGMPKindV2Leave
	IGMPKindV3Report
	IGMPKindMRDSolicitation
)

// IGMPv3GroupRecord is one decoded group record from a v3 membership
// report.
type IGMPv3GroupRecord struct {
	Type    uint8
	Group   [4]byte
	NumSrcs uint16
}

// ParseIGMP verifies the IGMP body checksum and dispatches on message
// type, returning a tagged decode. ok is false on any length or checksum
// failure.
func ParseIGMP(buf []byte) (IGMPDecoded, bool) {
	if len(buf) < IGMPHeaderLen {
		return IGMPDecoded{}, false
	}
	if InetChecksum(buf) != 0 {
		return IGMPDecoded{}, false
	}

	msgType := buf[0]
	switch msgType {
	case IGMPQuery:
		var group [4]byte
		copy(group[:], buf[4:8])

		d := IGMPDecoded{Kind: IGMPKindQuery, Group: group, MaxRespCode: buf[1]}
		if group == [4]byte{} {
			d.IsGeneralQuery = true
		}
		if len(buf) >= IGMPv3QueryBaseLen {
			d.QRV = buf[8] & 0x07
			d.SFlag = buf[8]&0x08 != 0
			d.QQIC = buf[9]
		} else {
			// v1/v2 query: use defaults, caller substitutes protocol defaults.
			d.QRV = 0
		}
		return d, true

	case IGMPV1Report:
		var group [4]byte
		copy(group[:], buf[4:8])
		return IGMPDecoded{Kind: IGMPKindV1Report, Group: group}, true

	case IGMPV2Report:
		var group [4]byte
		copy(group[:], buf[4:8])
		return IGMPDecoded{Kind: IGMPKindV2Report, Group: group}, true

	case IGMPV2Leave:
		var group [4]byte
		copy(group[:], buf[4:8])
		return IGMPDecoded{Kind: IGMPKindV2Leave, Group: group}, true

	case IGMPV3Report:
		records, truncated, ok := parseIGMPv3Report(buf)
		if !ok {
			return IGMPDecoded{}, false
		}
		return IGMPDecoded{Kind: IGMPKindV3Report, V3Records: records, V3Truncated: truncated}, true

	case IGMPMRDSolicitation:
		return IGMPDecoded{Kind: IGMPKindMRDSolicitation}, true

	default:
		return IGMPDecoded{Kind: IGMPKindUnknown}, true
	}
}

// parseIGMPv3Report decodes as many complete group records as are present.
// A record whose header or source list overruns the buffer truncates the
// scan (truncated=true) without discarding the records already decoded,
// matching the "retain previously-applied effects" failure semantics for
// malformed reports.
func parseIGMPv3Report(buf []byte) (records []IGMPv3GroupRecord, truncated bool, ok bool) {
	if len(buf) < IGMPv3ReportBaseLen {
		return nil, false, false
	}
	numGroups := int(binary.BigEndian.Uint16(buf[6:8]))
	off := IGMPv3ReportBaseLen

	records = make([]IGMPv3GroupRecord, 0, numGroups)
	for i := 0; i < numGroups; i++ {
		if len(buf)-off < IGMPv3GroupRecordBaseLen {
			return records, true, true
		}
		rec := buf[off:]
		recType := rec[0]
		auxLen := int(rec[1])
		numSrcs := int(binary.BigEndian.Uint16(rec[2:4]))
		recordLen := IGMPv3GroupRecordBaseLen + numSrcs*4 + auxLen*4
		if len(buf)-off < recordLen {
			return records, true, true
		}

		var group [4]byte
		copy(group[:], rec[4:8])
		records = append(records, IGMPv3GroupRecord{Type: recType, Group: group, NumSrcs: uint16(numSrcs)})

		off += recordLen
	}

	return records, false, true
}
