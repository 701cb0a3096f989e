package http2

import (
	"fmt"

	"github.com/danmuck/wirekit/internal/protocol/enum"
)

// Frame type codes.
const (
	TypeData         int64 = 0x0
	TypeHeaders      int64 = 0x1
	TypePriority     int64 = 0x2
	TypeRSTStream    int64 = 0x3
	TypeSettings     int64 = 0x4
	TypePushPromise  int64 = 0x5
	TypePing         int64 = 0x6
	TypeGoAway       int64 = 0x7
	TypeWindowUpdate int64 = 0x8
	TypeContinuation int64 = 0x9
	TypeAltSvc       int64 = 0xa
	TypeOrigin       int64 = 0xc
)

var FrameType = enum.New("FrameType", map[int64]string{
	TypeData:         "DATA",
	TypeHeaders:      "HEADERS",
	TypePriority:     "PRIORITY",
	TypeRSTStream:    "RST_STREAM",
	TypeSettings:     "SETTINGS",
	TypePushPromise:  "PUSH_PROMISE",
	TypePing:         "PING",
	TypeGoAway:       "GOAWAY",
	TypeWindowUpdate: "WINDOW_UPDATE",
	TypeContinuation: "CONTINUATION",
	TypeAltSvc:       "ALTSVC",
	TypeOrigin:       "ORIGIN",
}, enum.WithMissing(func(code int64) string {
	if code >= 0xf0 && code <= 0xff {
		return fmt.Sprintf("Reserved_for_Experimental_Use_0x%02X", code)
	}
	return fmt.Sprintf("Unassigned_0x%02X", code)
}))

var ErrorCode = enum.New("ErrorCode", map[int64]string{
	0x0: "NO_ERROR",
	0x1: "PROTOCOL_ERROR",
	0x2: "INTERNAL_ERROR",
	0x3: "FLOW_CONTROL_ERROR",
	0x4: "SETTINGS_TIMEOUT",
	0x5: "STREAM_CLOSED",
	0x6: "FRAME_SIZE_ERROR",
	0x7: "REFUSED_STREAM",
	0x8: "CANCEL",
	0x9: "COMPRESSION_ERROR",
	0xa: "CONNECT_ERROR",
	0xb: "ENHANCE_YOUR_CALM",
	0xc: "INADEQUATE_SECURITY",
	0xd: "HTTP_1_1_REQUIRED",
})

// Setting identifiers.
const (
	SettingHeaderTableSize       int64 = 0x1
	SettingEnablePush            int64 = 0x2
	SettingMaxConcurrentStreams  int64 = 0x3
	SettingInitialWindowSize     int64 = 0x4
	SettingMaxFrameSize          int64 = 0x5
	SettingMaxHeaderListSize     int64 = 0x6
	SettingEnableConnectProtocol int64 = 0x8
)

var SettingName = enum.New("SettingName", map[int64]string{
	SettingHeaderTableSize:       "HEADER_TABLE_SIZE",
	SettingEnablePush:            "ENABLE_PUSH",
	SettingMaxConcurrentStreams:  "MAX_CONCURRENT_STREAMS",
	SettingInitialWindowSize:     "INITIAL_WINDOW_SIZE",
	SettingMaxFrameSize:          "MAX_FRAME_SIZE",
	SettingMaxHeaderListSize:     "MAX_HEADER_LIST_SIZE",
	SettingEnableConnectProtocol: "ENABLE_CONNECT_PROTOCOL",
})
