package pcap

import "github.com/danmuck/wirekit/internal/protocol/enum"

// Link-layer header type codes used below.
const (
	LinkNull     int64 = 0
	LinkEthernet int64 = 1
	LinkRaw      int64 = 101
	LinkLoop     int64 = 108
	LinkLinuxSLL int64 = 113
	LinkIPv4     int64 = 228
	LinkIPv6     int64 = 229
)

// LinkType is the link-layer header type registry.
var LinkType = enum.New("LinkType", map[int64]string{
	0:   "NULL",
	1:   "ETHERNET",
	3:   "AX25",
	6:   "IEEE802_5",
	7:   "ARCNET_BSD",
	8:   "SLIP",
	9:   "PPP",
	10:  "FDDI",
	50:  "PPP_HDLC",
	51:  "PPP_ETHER",
	100: "ATM_RFC1483",
	101: "RAW",
	104: "C_HDLC",
	105: "IEEE802_11",
	107: "FRELAY",
	108: "LOOP",
	113: "LINUX_SLL",
	114: "LTALK",
	117: "PFLOG",
	119: "IEEE802_11_PRISM",
	122: "IP_OVER_FC",
	123: "SUNATM",
	127: "IEEE802_11_RADIOTAP",
	129: "ARCNET_LINUX",
	138: "APPLE_IP_OVER_IEEE1394",
	139: "MTP2_WITH_PHDR",
	140: "MTP2",
	141: "MTP3",
	142: "SCCP",
	143: "DOCSIS",
	144: "LINUX_IRDA",
	147: "USER_0",
	148: "USER_1",
	149: "USER_2",
	150: "USER_3",
	220: "USB_LINUX_MMAPPED",
	228: "IPV4",
	229: "IPV6",
	276: "LINUX_SLL2",
})
