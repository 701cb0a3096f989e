package ipv4

import (
	"fmt"

	"github.com/danmuck/wirekit/internal/protocol/enum"
)

// Option type codes. The code is the whole type octet: copied flag,
// class and number.
const (
	OptEOOL   int64 = 0
	OptNOP    int64 = 1
	OptRR     int64 = 7
	OptZSU    int64 = 10
	OptMTUP   int64 = 11
	OptMTUR   int64 = 12
	OptENCODE int64 = 15
	OptQS     int64 = 25
	OptTS     int64 = 68
	OptTR     int64 = 82
	OptSEC    int64 = 130
	OptLSR    int64 = 131
	OptESEC   int64 = 133
	OptCIPSO  int64 = 134
	OptSID    int64 = 136
	OptSSR    int64 = 137
	OptVISA   int64 = 142
	OptIMITD  int64 = 144
	OptEIP    int64 = 145
	OptADDEXT int64 = 147
	OptRTRALT int64 = 148
	OptSDB    int64 = 149
	OptDPS    int64 = 151
	OptUMP    int64 = 152
	OptFINN   int64 = 205
)

var OptionNumber = enum.New("OptionNumber", map[int64]string{
	OptEOOL:   "EOOL",
	OptNOP:    "NOP",
	OptRR:     "RR",
	OptZSU:    "ZSU",
	OptMTUP:   "MTUP",
	OptMTUR:   "MTUR",
	OptENCODE: "ENCODE",
	OptQS:     "QS",
	30:        "EXP_30",
	OptTS:     "TS",
	OptTR:     "TR",
	94:        "EXP_94",
	OptSEC:    "SEC",
	OptLSR:    "LSR",
	OptESEC:   "E_SEC",
	OptCIPSO:  "CIPSO",
	OptSID:    "SID",
	OptSSR:    "SSR",
	OptVISA:   "VISA",
	OptIMITD:  "IMITD",
	OptEIP:    "EIP",
	OptADDEXT: "ADDEXT",
	OptRTRALT: "RTRALT",
	OptSDB:    "SDB",
	OptDPS:    "DPS",
	OptUMP:    "UMP",
	158:       "EXP_158",
	OptFINN:   "FINN",
	222:       "EXP_222",
})

// ClassificationLevel is the RFC 1108 security level octet.
var ClassificationLevel = enum.New("ClassificationLevel", map[int64]string{
	0b0000_0001: "Reserved_4",
	0b0011_1101: "Top_Secret",
	0b0101_1010: "Secret",
	0b1001_0110: "Confidential",
	0b0110_0110: "Reserved_3",
	0b1100_1100: "Reserved_2",
	0b1010_1011: "Unclassified",
	0b1111_0001: "Reserved_1",
})

// RouterAlert holds the router alert values of RFC 2113 and its updates.
var RouterAlert = enum.New("RouterAlert", routerAlertSeed(), enum.WithMissing(func(code int64) string {
	if code >= 65503 && code <= 65534 {
		return fmt.Sprintf("Reserved_for_experimental_use_%d", code)
	}
	return enum.Unassigned(code)
}))

func routerAlertSeed() map[int64]string {
	seed := map[int64]string{
		0:     "Router_shall_examine_packet",
		65:    "NSIS_NATFW_NSLP",
		65535: "Reserved",
	}
	for level := int64(0); level < 32; level++ {
		seed[level+1] = fmt.Sprintf("Aggregated_Reservation_Nesting_Level_%d", level)
		seed[level+33] = fmt.Sprintf("QoS_NSLP_Aggregation_Level_%d", level)
	}
	return seed
}

// Quick-Start functions.
const (
	QSRequest int64 = 0
	QSReport  int64 = 8
)

var QSFunction = enum.New("QSFunction", map[int64]string{
	QSRequest: "Quick_Start_Request",
	QSReport:  "Report_of_Approved_Rate",
})

// Transport protocol numbers seen most often above IPv4.
const (
	ProtoICMP int64 = 1
	ProtoTCP  int64 = 6
	ProtoUDP  int64 = 17
)

var TransType = enum.New("TransType", map[int64]string{
	0:   "HOPOPT",
	1:   "ICMP",
	2:   "IGMP",
	4:   "IPv4",
	6:   "TCP",
	17:  "UDP",
	41:  "IPv6",
	43:  "IPv6_Route",
	44:  "IPv6_Frag",
	47:  "GRE",
	50:  "ESP",
	51:  "AH",
	58:  "IPv6_ICMP",
	59:  "IPv6_NoNxt",
	60:  "IPv6_Opts",
	89:  "OSPFIGP",
	103: "PIM",
	112: "VRRP",
	115: "L2TP",
	132: "SCTP",
	136: "UDPLite",
	137: "MPLS_in_IP",
	255: "Reserved",
}, enum.WithMissing(func(code int64) string {
	if code == 253 || code == 254 {
		return fmt.Sprintf("Experimental_%d", code)
	}
	return enum.Unassigned(code)
}))
