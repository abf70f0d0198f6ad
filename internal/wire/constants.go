package wire

// Ethernet types.
const (
	EthernetTypeIPv4 uint16 = 0x0800
	EthernetTypeIPv6 uint16 = 0x86dd
)

const EthernetHeaderLen = 14

// IPv4 addresses used on the wire.
var (
	IPv4AllSystems  = [4]byte{224, 0, 0, 1}
	IPv4AllRouters  = [4]byte{224, 0, 0, 2}
	IPv4AllReports  = [4]byte{224, 0, 0, 22}
	IPv4AllSnoopers = [4]byte{224, 0, 0, 106}
)

// IPv4 protocol numbers and option values.
const (
	IPv4ProtocolIGMP       uint8  = 2
	IPv4FlagDF             uint16 = 0x4000
	IPv4OptRouterAlert     uint8  = 0x94
	IPv4TOSInternetControl uint8  = 0xc0
	IPv4HeaderLen                 = 20
	IPv4RouterAlertOptLen         = 4
)

// IGMP message types.
const (
	IGMPQuery            uint8 = 0x11
	IGMPV1Report         uint8 = 0x12
	IGMPV2Report         uint8 = 0x16
	IGMPV2Leave          uint8 = 0x17
	IGMPV3Report         uint8 = 0x22
	IGMPMRDAdvertisement uint8 = 0x30
	IGMPMRDSolicitation  uint8 = 0x31
	IGMPMRDTermination   uint8 = 0x32
)

// IGMP protocol defaults (RFC 2236 & RFC 9776).
const (
	IGMPDefaultRobustness       = 2
	IGMPDefaultQueryInterval    = 125 // seconds
	IGMPDefaultResponseInterval = 100 // tenths of a second
	IGMPDefaultLastMbrInterval  = 10  // tenths of a second
)

const IGMPHeaderLen = 8
const IGMPv3QueryBaseLen = 12
const IGMPv3GroupRecordBaseLen = 8
const IGMPv3ReportBaseLen = 8

// IPv6 addresses used on the wire.
var (
	IPv6AllNodes     = [16]byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01}
	IPv6AllRouters   = [16]byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02}
	IPv6AllRoutersV2 = [16]byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x10}
	IPv6AllSnoopers  = [16]byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x6a}
)

// IPv6 option and protocol values.
const (
	IPv6OptPadN        uint8 = 0x01
	IPv6NextHeaderHop  uint8 = 0x00
	IPv6OptRouterAlert uint8 = 0x05
	IPv6ProtocolICMPv6 uint8 = 0x3a
	IPv6HeaderLen            = 40
	IPv6HopByHopLen          = 8
)

// MLD message types.
const (
	MLDQuery            uint8 = 0x82
	MLDV1Report         uint8 = 0x83
	MLDV1Done           uint8 = 0x84
	MLDV2Report         uint8 = 0x8f
	MLDMRDAdvertisement uint8 = 0x97
	MLDMRDSolicitation  uint8 = 0x98
	MLDMRDTermination   uint8 = 0x99
)

// MLD protocol defaults (RFC 2710 & RFC 9777).
const (
	MLDDefaultRobustness       = 2
	MLDDefaultQueryInterval    = 125   // seconds
	MLDDefaultResponseInterval = 10000 // milliseconds
	MLDDefaultLastMbrInterval  = 1000  // milliseconds
)

const MLDHeaderLen = 24
const MLDv2QueryBaseLen = 28
const MLDv2GroupRecordBaseLen = 20
const MLDv2ReportBaseLen = 8

// Group record types shared by IGMPv3 and MLDv2.
const (
	RecModeIsInclude   uint8 = 0x01
	RecModeIsExclude   uint8 = 0x02
	RecChangeToInclude uint8 = 0x03
	RecChangeToExclude uint8 = 0x04
	RecAllowNewSources uint8 = 0x05
	RecBlockOldSources uint8 = 0x06
)

// MRD protocol parameters, shared by IGMP and MLD (RFC 4286).
const (
	MRDInterval         = 20 // seconds
	MRDIntervalJitterMs = 500
	MRDInitialIntervalS = 2
	MRDInitialCount     = 3
)

const MRDAdvertisementLen = 8
const MRDSolicitationLen = 4
