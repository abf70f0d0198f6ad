package igmp

import (
	"github.com/dennypage/mcast-bridge/internal/wire"
)

func (e *Engine) sendQuery(ifs *ifaceState, group [4]byte, sFlag bool) {
	igmpBuf := make([]byte, wire.IGMPGeneralQueryLen)
	wire.PutIGMPv3Query(igmpBuf, group, uint8(ifs.respTenths), sFlag, uint8(ifs.qrv), uint8(ifs.qqicSec))

	dst := wire.IPv4AllSystems
	if group != [4]byte{} {
		dst = group
	}

	frame := e.buildIPv4Frame(ifs, dst, igmpBuf)
	if frame == nil {
		return
	}
	if err := ifs.handle.WritePacketData(frame); err != nil {
		e.log.Warn("igmp: query injection failed", "interface", ifs.in.Name, "error", err)
	}
}

func (e *Engine) sendMRDAdvertisement(ifs *ifaceState) {
	body := make([]byte, wire.MRDAdvertisementLen)
	wire.PutMRDAdvertisement(body, wire.IGMPMRDAdvertisement, wire.MRDInterval, uint16(ifs.qqicSec), uint16(ifs.qrv))

	frame := e.buildIPv4Frame(ifs, wire.IPv4AllSnoopers, body)
	if frame == nil {
		return
	}
	if err := ifs.handle.WritePacketData(frame); err != nil {
		e.log.Warn("igmp: mrd advertisement injection failed", "interface", ifs.in.Name, "error", err)
	}
}

func (e *Engine) buildIPv4Frame(ifs *ifaceState, dst [4]byte, payload []byte) []byte {
	var src [4]byte
	srcIP := ifs.in.IPv4Addr.To4()
	if srcIP == nil {
		e.log.Warn("igmp: interface has no IPv4 address", "interface", ifs.in.Name)
		return nil
	}
	copy(src[:], srcIP)

	ipLen := wire.IPv4HeaderWithRA
	frame := make([]byte, wire.EthernetHeaderLen+ipLen+len(payload))

	dstMAC := wire.IPv4MulticastMAC(dst)
	var srcMAC [6]byte
	copy(srcMAC[:], ifs.in.MACAddr)
	wire.PutEthernetHeader(frame, dstMAC, srcMAC, wire.EthernetTypeIPv4)

	wire.PutIPv4HeaderWithRouterAlert(frame[wire.EthernetHeaderLen:], src, dst, wire.IPv4ProtocolIGMP, 1, len(payload))
	copy(frame[wire.EthernetHeaderLen+ipLen:], payload)

	return frame
}
