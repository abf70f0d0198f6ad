package wire

import "encoding/binary"

// PutMLDv2Query writes a 28-byte MLDv2 query (no source list) into buf,
// computing the ICMPv6 checksum with the given pseudo-header addresses.
func PutMLDv2Query(buf []byte, group [16]byte, maxRespCode uint16, sFlag bool, qrv uint8, qqic uint8, src, dst [16]byte) {
	buf[0] = MLDQuery
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], 0) // checksum, filled below
	binary.BigEndian.PutUint16(buf[4:6], maxRespCode)
	binary.BigEndian.PutUint16(buf[6:8], 0) // reserved
	copy(buf[8:24], group[:])

	flags := qrv & 0x07
	if sFlag {
		flags |= 0x08
	}
	buf[24] = flags
	buf[25] = qqic
	binary.BigEndian.PutUint16(buf[26:28], 0) // num_srcs

	csum := Inet6Checksum(buf[:MLDv2QueryBaseLen], src, dst, IPv6ProtocolICMPv6)
	binary.BigEndian.PutUint16(buf[2:4], csum)
}

// PatchMLDv2QueryGroupAndS rewrites the group address and S flag of an
// already-built query template in place and recomputes its checksum.
func PatchMLDv2QueryGroupAndS(buf []byte, group [16]byte, sFlag bool, qrv uint8, src, dst [16]byte) {
	copy(buf[8:24], group[:])
	flags := qrv & 0x07
	if sFlag {
		flags |= 0x08
	}
	buf[24] = flags

	binary.BigEndian.PutUint16(buf[2:4], 0)
	csum := Inet6Checksum(buf[:MLDv2QueryBaseLen], src, dst, IPv6ProtocolICMPv6)
	binary.BigEndian.PutUint16(buf[2:4], csum)
}

// PutMLDv1Message writes an MLDv1-style message (report or done share
// this layout) into buf.
func PutMLDv1Message(buf []byte, msgType uint8, group [16]byte, src, dst [16]byte) {
	buf[0] = msgType
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[4:6], 0) // response
	binary.BigEndian.PutUint16(buf[6:8], 0) // reserved
	copy(buf[8:24], group[:])

	csum := Inet6Checksum(buf[:MLDHeaderLen], src, dst, IPv6ProtocolICMPv6)
	binary.BigEndian.PutUint16(buf[2:4], csum)
}

// MLDDecoded is a tagged decode result for an MLD message.
type MLDDecoded struct {
	Kind  MLDKind
	Group [16]byte

	// Query fields (Kind == MLDKindQuery).
	IsGeneralQuery bool
	IsV2Query      bool
	MaxRespCode    uint16
	SFlag          bool
	QRV            uint8
	QQIC           uint8

	// Report fields (Kind == MLDKindV2Report).
	V2Records   []MLDv2GroupRecord
	V2Truncated bool
}

type MLDKind int

const (
	MLDKindUnknown MLDKind = iota
	MLDKindQuery
	MLDKindV1Report
	MLDKindV1Done
	MLDKindV2Report
	MLDKindMRDSolicitation
)

// MLDv2GroupRecord is one decoded address record from a v2 listener
// report.
type MLDv2GroupRecord struct {
	Type    uint8
	Group   [16]byte
	NumSrcs uint16
}

// ParseMLD verifies the ICMPv6/MLD checksum (with pseudo header) and
// dispatches on message type, returning a tagged decode.
func ParseMLD(buf []byte, src, dst [16]byte) (MLDDecoded, bool) {
	if len(buf) < MLDHeaderLen {
		return MLDDecoded{}, false
	}
	if Inet6Checksum(buf, src, dst, IPv6ProtocolICMPv6) != 0 {
		return MLDDecoded{}, false
	}

	msgType := buf[0]
	switch msgType {
	case MLDQuery:
		var group [16]byte
		copy(group[:], buf[8:24])

		d := MLDDecoded{Kind: MLDKindQuery, Group: group, MaxRespCode: binary.BigEndian.Uint16(buf[4:6])}
		if group == [16]byte{} {
			d.IsGeneralQuery = true
		}
		if len(buf) >= MLDv2QueryBaseLen {
			d.IsV2Query = true
			d.QRV = buf[24] & 0x07
			d.SFlag = buf[24]&0x08 != 0
			d.QQIC = buf[25]
		}
		return d, true

	case MLDV1Report:
		var group [16]byte
		copy(group[:], buf[8:24])
		return MLDDecoded{Kind: MLDKindV1Report, Group: group}, true

	case MLDV1Done:
		var group [16]byte
		copy(group[:], buf[8:24])
		return MLDDecoded{Kind: MLDKindV1Done, Group: group}, true

	case MLDV2Report:
		records, truncated, ok := parseMLDv2Report(buf)
		if !ok {
			return MLDDecoded{}, false
		}
		return MLDDecoded{Kind: MLDKindV2Report, V2Records: records, V2Truncated: truncated}, true

	case MLDMRDSolicitation:
		return MLDDecoded{Kind: MLDKindMRDSolicitation}, true

	default:
		return MLDDecoded{Kind: MLDKindUnknown}, true
	}
}

func parseMLDv2Report(buf []byte) (records []MLDv2GroupRecord, truncated bool, ok bool) {
	if len(buf) < MLDv2ReportBaseLen {
		return nil, false, false
	}
	numGroups := int(binary.BigEndian.Uint16(buf[6:8]))
	off := MLDv2ReportBaseLen

	records = make([]MLDv2GroupRecord, 0, numGroups)
	for i := 0; i < numGroups; i++ {
		if len(buf)-off < MLDv2GroupRecordBaseLen {
			return records, true, true
		}
		rec := buf[off:]
		recType := rec[0]
		auxLen := int(rec[1])
		numSrcs := int(binary.BigEndian.Uint16(rec[2:4]))
		recordLen := MLDv2GroupRecordBaseLen + numSrcs*16 + auxLen*4
		if len(buf)-off < recordLen {
			return records, true, true
		}

		var group [16]byte
		copy(group[:], rec[4:20])
		records = append(records, MLDv2GroupRecord{Type: recType, Group: group, NumSrcs: uint16(numSrcs)})

		off += recordLen
	}

	return records, false, true
}
