package mld

import (
	"github.com/dennypage/mcast-bridge/internal/wire"
)

func (e *Engine) sendQuery(ifs *ifaceState, group [16]byte, sFlag bool) {
	icmpBuf := make([]byte, wire.MLDv2QueryBaseLen)

	dst := wire.IPv6AllNodes
	if group != [16]byte{} {
		dst = group
	}

	src := ifs.in.IPv6LinkLocal
	var srcAddr [16]byte
	if src != nil {
		copy(srcAddr[:], src.To16())
	}

	wire.PutMLDv2Query(icmpBuf, group, uint16(ifs.respMillis), sFlag, uint8(ifs.qrv), uint8(ifs.qqicSec), srcAddr, dst)

	frame := e.buildIPv6Frame(ifs, srcAddr, dst, icmpBuf)
	if frame == nil {
		return
	}
	if err := ifs.handle.WritePacketData(frame); err != nil {
		e.log.Warn("mld: query injection failed", "interface", ifs.in.Name, "error", err)
	}
}

func (e *Engine) sendMRDAdvertisement(ifs *ifaceState) {
	body := make([]byte, wire.MRDAdvertisementLen)

	src := ifs.in.IPv6LinkLocal
	var srcAddr [16]byte
	if src != nil {
		copy(srcAddr[:], src.To16())
	}

	wire.PutMRDAdvertisement6(body, wire.MLDMRDAdvertisement, wire.MRDInterval, uint16(ifs.qqicSec), uint16(ifs.qrv), srcAddr, wire.IPv6AllSnoopers)

	frame := e.buildIPv6Frame(ifs, srcAddr, wire.IPv6AllSnoopers, body)
	if frame == nil {
		return
	}
	if err := ifs.handle.WritePacketData(frame); err != nil {
		e.log.Warn("mld: mrd advertisement injection failed", "interface", ifs.in.Name, "error", err)
	}
}

func (e *Engine) buildIPv6Frame(ifs *ifaceState, src, dst [16]byte, payload []byte) []byte {
	if src == [16]byte{} {
		e.log.Warn("mld: interface has no IPv6 link-local address", "interface", ifs.in.Name)
		return nil
	}

	ipLen := wire.IPv6HeaderLen + wire.IPv6HopByHopRALen
	frame := make([]byte, wire.EthernetHeaderLen+ipLen+len(payload))

	dstMAC := wire.IPv6MulticastMAC(dst)
	var srcMAC [6]byte
	copy(srcMAC[:], ifs.in.MACAddr)
	wire.PutEthernetHeader(frame, dstMAC, srcMAC, wire.EthernetTypeIPv6)

	wire.PutIPv6HeaderWithHopByHopRA(frame[wire.EthernetHeaderLen:], src, dst, wire.IPv6ProtocolICMPv6, len(payload))
	copy(frame[wire.EthernetHeaderLen+ipLen:], payload)

	return frame
}
