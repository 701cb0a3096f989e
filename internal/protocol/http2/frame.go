// Package http2 declares HTTP/2 frames (RFC 9113) on the schema engine.
// The frame header selects the payload layout through a switch over the
// frame type registry.
package http2

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/enum"
	"github.com/danmuck/wirekit/internal/protocol/schema"
)

const HeaderLen = 9

// Preface is the client connection preface.
const Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Frame flags. The same bit means different things per frame type.
const (
	FlagEndStream  uint8 = 0x1
	FlagAck        uint8 = 0x1
	FlagEndHeaders uint8 = 0x4
	FlagPadded     uint8 = 0x8
	FlagPriority   uint8 = 0x20
)

var ErrPreface = errors.New("http2: bad connection preface")

// Frame is one frame: the 9-octet header and its type-specific payload.
var Frame = schema.New("http2_frame",
	schema.Uint("length", 3, schema.Default(0)),
	schema.Enum("type", 1, FrameType, schema.Default(TypeData)),
	schema.Uint8("flags", schema.Default(0)),
	streamID("stream", "r", "sid"),
	schema.Switch("frame", selectBody),
).With(schema.WithPostProcess(checkFrame))

func streamID(name, reserved, id string) *schema.BitField {
	return schema.Bits(name, 4, []schema.BitSpec{
		{Name: reserved, Start: 0, Length: 1},
		{Name: id, Start: 1, Length: 31},
	}, schema.Default(map[string]uint64{}))
}

func selectBody(pkt *protocol.Packet) (schema.Field, error) {
	length := int(pkt.Int("length"))
	if length == 0 {
		return schema.Bytes("frame", schema.Len(0), schema.Default([]byte{})), nil
	}
	body, err := Frames.Lookup(pkt.Int("type"))
	if err != nil {
		return nil, err
	}
	return schema.Nested("frame", body, schema.Len(length)), nil
}

func flagged(mask uint8) schema.Predicate {
	return func(pkt *protocol.Packet) bool {
		if pkt.Parent == nil {
			return false
		}
		return uint8(pkt.Parent.Int("flags"))&mask != 0
	}
}

// rest spans what is left of the payload before its padding. While
// packing there is no budget, so a byte value keeps its own length.
func rest(name string) schema.LengthFunc {
	return func(pkt *protocol.Packet) (int, error) {
		if pkt.Remaining < 0 {
			b, _ := pkt.Value(name).([]byte)
			return len(b), nil
		}
		n := pkt.Remaining - int(pkt.Int("pad_len"))
		if n < 0 {
			return 0, &protocol.MalformedError{Schema: "http2_frame", Reason: fmt.Sprintf("padding %d exceeds payload", pkt.Int("pad_len"))}
		}
		return n, nil
	}
}

func padLen() schema.Field {
	return schema.Conditional(schema.Uint8("pad_len", schema.Default(0)), flagged(FlagPadded))
}

func padding(pkt *protocol.Packet) (int, error) {
	return int(pkt.Int("pad_len")), nil
}

var (
	dataBody = schema.New("http2_data",
		padLen(),
		schema.Bytes("data", schema.LenFunc(rest("data")), schema.Default([]byte{})),
		schema.Padding("padding", schema.LenFunc(padding)),
	)

	headersBody = schema.New("http2_headers",
		padLen(),
		schema.Conditional(streamID("dependency", "exclusive", "sid"), flagged(FlagPriority)),
		schema.Conditional(schema.Uint8("weight", schema.Default(15)), flagged(FlagPriority)),
		schema.Bytes("fragment", schema.LenFunc(rest("fragment")), schema.Default([]byte{})),
		schema.Padding("padding", schema.LenFunc(padding)),
	)

	priorityBody = schema.New("http2_priority",
		streamID("dependency", "exclusive", "sid"),
		schema.Uint8("weight", schema.Default(15)),
	)

	rstStreamBody = schema.New("http2_rst_stream",
		schema.Enum("error", 4, ErrorCode, schema.Default(0)),
	)

	settingPair = schema.New("http2_setting",
		schema.Enum("id", 2, SettingName),
		schema.Uint32("value"),
	)

	settingsBody = schema.New("http2_settings",
		schema.List("settings", schema.Nested("setting", settingPair), schema.LenFunc(remaining), schema.Default([]any{})),
	)

	pushPromiseBody = schema.New("http2_push_promise",
		padLen(),
		streamID("promised", "r", "sid"),
		schema.Bytes("fragment", schema.LenFunc(rest("fragment")), schema.Default([]byte{})),
		schema.Padding("padding", schema.LenFunc(padding)),
	)

	pingBody = schema.New("http2_ping",
		schema.Bytes("data", schema.Len(8), schema.Default(make([]byte, 8))),
	)

	goAwayBody = schema.New("http2_goaway",
		streamID("last", "r", "sid"),
		schema.Enum("error", 4, ErrorCode, schema.Default(0)),
		schema.Bytes("debug", schema.LenFunc(rest("debug")), schema.Default([]byte{})),
	)

	windowUpdateBody = schema.New("http2_window_update",
		streamID("increment", "r", "size"),
	)

	continuationBody = schema.New("http2_continuation",
		schema.Bytes("fragment", schema.LenFunc(rest("fragment")), schema.Default([]byte{})),
	)

	unknownBody = schema.New("http2_unknown",
		schema.Bytes("data", schema.LenFunc(rest("data")), schema.Default([]byte{})),
	)
)

func remaining(pkt *protocol.Packet) (int, error) {
	if pkt.Remaining < 0 {
		return 0, nil
	}
	return pkt.Remaining, nil
}

// Frames maps frame types to payload layouts. Unknown types keep their
// payload as bytes.
var Frames = schema.NewRegistry("http2_frames", nil, unknownBody).
	MustRegister(dataBody, TypeData).
	MustRegister(headersBody, TypeHeaders).
	MustRegister(priorityBody, TypePriority).
	MustRegister(rstStreamBody, TypeRSTStream).
	MustRegister(settingsBody, TypeSettings).
	MustRegister(pushPromiseBody, TypePushPromise).
	MustRegister(pingBody, TypePing).
	MustRegister(goAwayBody, TypeGoAway).
	MustRegister(windowUpdateBody, TypeWindowUpdate).
	MustRegister(continuationBody, TypeContinuation)

var connectionOnly = map[int64]bool{
	TypeSettings: true,
	TypePing:     true,
	TypeGoAway:   true,
}

var streamOnly = map[int64]bool{
	TypeData:         true,
	TypeHeaders:      true,
	TypePriority:     true,
	TypeRSTStream:    true,
	TypePushPromise:  true,
	TypeContinuation: true,
}

func checkFrame(rec *schema.Record, pkt *protocol.Packet) (*schema.Record, error) {
	typ := rec.Int("type")
	sid := pkt.Bit("stream", "sid")
	switch {
	case connectionOnly[typ] && sid != 0:
		return nil, &protocol.MalformedError{Schema: "http2_frame", Reason: fmt.Sprintf("%s on stream %d", FrameType.Get(typ), sid)}
	case streamOnly[typ] && sid == 0:
		return nil, &protocol.MalformedError{Schema: "http2_frame", Reason: fmt.Sprintf("%s on stream 0", FrameType.Get(typ))}
	case typ == TypeSettings && uint8(rec.Int("flags"))&FlagAck != 0 && rec.Int("length") != 0:
		return nil, &protocol.MalformedError{Schema: "http2_frame", Reason: "SETTINGS ack with payload"}
	case typ == TypeSettings && rec.Int("length")%6 != 0:
		return nil, &protocol.MalformedError{Schema: "http2_frame", Reason: fmt.Sprintf("SETTINGS length %d", rec.Int("length"))}
	}
	return rec, nil
}

// Setting is one SETTINGS parameter.
type Setting struct {
	ID    *enum.Member
	Value uint32
}

// FrameInfo is the typed view of a decoded Frame record.
type FrameInfo struct {
	Length   uint32
	Type     *enum.Member
	Flags    uint8
	StreamID uint32
	// Body is the payload record, nil for an empty payload.
	Body   *schema.Record
	Record *schema.Record
}

func view(rec *schema.Record) FrameInfo {
	stream, _ := rec.Value("stream").(map[string]uint64)
	out := FrameInfo{
		Length:   uint32(rec.Int("length")),
		Type:     FrameType.Get(rec.Int("type")),
		Flags:    uint8(rec.Int("flags")),
		StreamID: uint32(stream["sid"]),
		Record:   rec,
	}
	out.Body, _ = rec.Value("frame").(*schema.Record)
	return out
}

func (f FrameInfo) Has(flag uint8) bool { return f.Flags&flag != 0 }

// Settings lists the parameters of a SETTINGS frame in wire order.
func (f FrameInfo) Settings() []Setting {
	if f.Type.Value != TypeSettings || f.Body == nil {
		return nil
	}
	items, _ := f.Body.Value("settings").([]any)
	out := make([]Setting, 0, len(items))
	for _, it := range items {
		rec, ok := it.(*schema.Record)
		if !ok {
			continue
		}
		out = append(out, Setting{
			ID:    SettingName.Get(rec.Int("id")),
			Value: uint32(rec.Int("value")),
		})
	}
	return out
}

// Parse decodes exactly one frame from b.
func Parse(b []byte) (FrameInfo, error) {
	rec, err := Frame.UnpackBytes(b)
	if err != nil {
		return FrameInfo{}, err
	}
	out := view(rec)
	if n := HeaderLen + int(out.Length); n != len(b) {
		return FrameInfo{}, fmt.Errorf("http2: %d trailing bytes after frame", len(b)-n)
	}
	return out, nil
}

// ReadFrames decodes consecutive frames, skipping a leading client
// preface.
func ReadFrames(b []byte) ([]FrameInfo, error) {
	if bytes.HasPrefix(b, []byte(Preface)) {
		b = b[len(Preface):]
	} else if bytes.HasPrefix(b, []byte("PRI ")) {
		return nil, ErrPreface
	}
	r := protocol.NewReader(b)
	var out []FrameInfo
	for r.Remaining() > 0 {
		offset := r.Offset()
		rec, err := Frame.Unpack(r, -1, nil)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, fmt.Errorf("http2: frame %d at offset %d: %w", len(out)+1, offset, err)
		}
		out = append(out, view(rec))
	}
	return out, nil
}

// Build assembles a frame. The payload length is computed from body.
func Build(typ int64, flags uint8, stream uint32, body schema.Values) (*schema.Record, error) {
	vals := schema.Values{
		"length": 0,
		"type":   typ,
		"flags":  flags,
		"stream": map[string]uint64{"sid": uint64(stream)},
	}
	if len(body) > 0 {
		ctx := protocol.NewPacket(nil)
		ctx.Set("type", typ)
		ctx.Set("flags", flags)
		layout, err := Frames.Lookup(typ)
		if err != nil {
			return nil, err
		}
		rec, err := layout.BuildIn(body, ctx)
		if err != nil {
			return nil, err
		}
		b, err := rec.Bytes()
		if err != nil {
			return nil, err
		}
		if len(b) > 1<<24-1 {
			return nil, protocol.FieldValuef("length", "payload %d exceeds 24 bits", len(b))
		}
		if len(b) > 0 {
			vals["length"] = len(b)
			vals["frame"] = rec
		}
	}
	return Frame.Build(vals)
}
