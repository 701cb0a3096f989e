package http2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	xhttp2 "golang.org/x/net/http2"

	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/enum"
	"github.com/danmuck/wirekit/internal/protocol/schema"
	"github.com/danmuck/wirekit/internal/testutil/testlog"
)

func frameBytes(t *testing.T, typ int64, flags uint8, stream uint32, body schema.Values) []byte {
	t.Helper()
	rec, err := Build(typ, flags, stream, body)
	require.NoError(t, err)
	b, err := rec.Bytes()
	require.NoError(t, err)
	return b
}

func TestReadFramesWrittenByXNet(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	buf.WriteString(Preface)
	fr := xhttp2.NewFramer(&buf, nil)
	require.NoError(t, fr.WriteSettings(
		xhttp2.Setting{ID: xhttp2.SettingMaxConcurrentStreams, Val: 100},
		xhttp2.Setting{ID: xhttp2.SettingInitialWindowSize, Val: 65535},
	))
	require.NoError(t, fr.WriteSettingsAck())
	require.NoError(t, fr.WriteHeaders(xhttp2.HeadersFrameParam{
		StreamID:      3,
		BlockFragment: []byte{0x82, 0x86},
		EndHeaders:    true,
		Priority:      xhttp2.PriorityParam{StreamDep: 1, Exclusive: true, Weight: 200},
	}))
	require.NoError(t, fr.WriteDataPadded(3, true, []byte("body"), []byte{0, 0, 0}))
	require.NoError(t, fr.WritePing(false, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, fr.WriteWindowUpdate(0, 1024))
	require.NoError(t, fr.WriteRSTStream(3, xhttp2.ErrCodeCancel))
	require.NoError(t, fr.WriteGoAway(3, xhttp2.ErrCodeProtocol, []byte("bye")))

	frames, err := ReadFrames(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, frames, 8)

	settings := frames[0]
	require.Equal(t, "SETTINGS", settings.Type.Name)
	require.Equal(t, uint32(12), settings.Length)
	got := settings.Settings()
	require.Len(t, got, 2)
	require.Equal(t, "MAX_CONCURRENT_STREAMS", got[0].ID.Name)
	require.Equal(t, uint32(100), got[0].Value)
	require.Equal(t, uint32(65535), got[1].Value)

	ack := frames[1]
	require.True(t, ack.Has(FlagAck))
	require.Nil(t, ack.Body)
	require.Empty(t, ack.Settings())

	headers := frames[2]
	require.Equal(t, uint32(3), headers.StreamID)
	require.True(t, headers.Has(FlagEndHeaders))
	require.True(t, headers.Has(FlagPriority))
	dep := headers.Body.Value("dependency").(map[string]uint64)
	require.Equal(t, uint64(1), dep["exclusive"])
	require.Equal(t, uint64(1), dep["sid"])
	require.Equal(t, int64(200), headers.Body.Int("weight"))
	require.Equal(t, []byte{0x82, 0x86}, headers.Body.Value("fragment"))

	data := frames[3]
	require.True(t, data.Has(FlagEndStream))
	require.True(t, data.Has(FlagPadded))
	require.Equal(t, int64(3), data.Body.Int("pad_len"))
	require.Equal(t, []byte("body"), data.Body.Value("data"))
	require.Equal(t, []byte{0, 0, 0}, data.Body.Value("padding"))

	ping := frames[4]
	require.False(t, ping.Has(FlagAck))
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, ping.Body.Value("data"))

	window := frames[5]
	require.Equal(t, uint32(0), window.StreamID)
	require.Equal(t, uint64(1024), window.Body.Value("increment").(map[string]uint64)["size"])

	rst := frames[6]
	require.Equal(t, "CANCEL", rst.Body.Value("error").(*enum.Member).Name)

	goAway := frames[7]
	require.Equal(t, uint64(3), goAway.Body.Value("last").(map[string]uint64)["sid"])
	require.Equal(t, "PROTOCOL_ERROR", goAway.Body.Value("error").(*enum.Member).Name)
	require.Equal(t, []byte("bye"), goAway.Body.Value("debug"))
}

func TestBuiltFramesReadByXNet(t *testing.T) {
	testlog.Start(t)
	var wire []byte
	wire = append(wire, frameBytes(t, TypeSettings, 0, 0, schema.Values{
		"settings": []any{
			schema.Values{"id": SettingMaxFrameSize, "value": 32768},
		},
	})...)
	wire = append(wire, frameBytes(t, TypeData, FlagEndStream|FlagPadded, 1, schema.Values{
		"pad_len": 2,
		"data":    []byte("hi"),
		"padding": []byte{0, 0},
	})...)
	wire = append(wire, frameBytes(t, TypePing, FlagAck, 0, schema.Values{
		"data": []byte("pingpong"),
	})...)
	wire = append(wire, frameBytes(t, TypeGoAway, 0, 0, schema.Values{
		"last":  map[string]uint64{"sid": 7},
		"error": 0xb,
		"debug": []byte("calm"),
	})...)

	fr := xhttp2.NewFramer(nil, bytes.NewReader(wire))

	f, err := fr.ReadFrame()
	require.NoError(t, err)
	sf, ok := f.(*xhttp2.SettingsFrame)
	require.True(t, ok, "got %T", f)
	v, ok := sf.Value(xhttp2.SettingMaxFrameSize)
	require.True(t, ok)
	require.Equal(t, uint32(32768), v)

	f, err = fr.ReadFrame()
	require.NoError(t, err)
	df, ok := f.(*xhttp2.DataFrame)
	require.True(t, ok, "got %T", f)
	require.Equal(t, uint32(1), df.StreamID)
	require.True(t, df.StreamEnded())
	require.Equal(t, []byte("hi"), df.Data())

	f, err = fr.ReadFrame()
	require.NoError(t, err)
	pf, ok := f.(*xhttp2.PingFrame)
	require.True(t, ok, "got %T", f)
	require.True(t, pf.IsAck())
	require.Equal(t, [8]byte{'p', 'i', 'n', 'g', 'p', 'o', 'n', 'g'}, pf.Data)

	f, err = fr.ReadFrame()
	require.NoError(t, err)
	gf, ok := f.(*xhttp2.GoAwayFrame)
	require.True(t, ok, "got %T", f)
	require.Equal(t, uint32(7), gf.LastStreamID)
	require.Equal(t, xhttp2.ErrCodeEnhanceYourCalm, gf.ErrCode)
	require.Equal(t, []byte("calm"), gf.DebugData())
}

func TestParseRejectsFramesOnWrongStream(t *testing.T) {
	testlog.Start(t)
	cases := map[string][]byte{
		"data on stream 0":     {0, 0, 1, 0x0, 0, 0, 0, 0, 0, 'x'},
		"settings on stream 1": {0, 0, 0, 0x4, 0, 0, 0, 0, 1},
		"ping on stream 5":     {0, 0, 8, 0x6, 0, 0, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0, 0},
		"settings ack payload": {0, 0, 6, 0x4, 0x1, 0, 0, 0, 0, 0, 3, 0, 0, 0, 1},
	}
	for name, wire := range cases {
		_, err := Parse(wire)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		require.ErrorIs(t, err, protocol.ErrMalformed, name)
	}

	_, err := Parse([]byte{0, 0, 5, 0x4, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0})
	require.Error(t, err, "settings payload must be a multiple of 6")
}

func TestUnknownFrameTypeKeepsPayload(t *testing.T) {
	testlog.Start(t)
	wire := []byte{0, 0, 2, 0xfa, 0, 0, 0, 0, 1, 'a', 'b'}
	f, err := Parse(wire)
	require.NoError(t, err)
	require.Equal(t, "Reserved_for_Experimental_Use_0xFA", f.Type.Name)
	require.Equal(t, "http2_unknown", f.Body.Name())
	require.Equal(t, []byte("ab"), f.Body.Value("data"))
	require.Equal(t, "Unassigned_0x0B", FrameType.Get(0x0b).Name)

	b, err := f.Record.Pack(nil)
	require.NoError(t, err)
	require.Equal(t, wire, b)
}

func TestReadFramesEdges(t *testing.T) {
	testlog.Start(t)
	_, err := ReadFrames([]byte("PRI * HTTP/1.1\r\n\r\n"))
	require.ErrorIs(t, err, ErrPreface)

	frames, err := ReadFrames(nil)
	require.NoError(t, err)
	require.Empty(t, frames)

	ping := frameBytes(t, TypePing, 0, 0, schema.Values{"data": []byte("12345678")})
	cut := append(append([]byte{}, ping...), ping[:12]...)
	frames, err = ReadFrames(cut)
	require.Error(t, err)
	require.Len(t, frames, 1)

	_, err = Parse(append(ping, 0))
	require.ErrorContains(t, err, "trailing")
}

func TestBuildEmptyFrame(t *testing.T) {
	testlog.Start(t)
	b := frameBytes(t, TypeSettings, FlagAck, 0, nil)
	require.Equal(t, []byte{0, 0, 0, 0x4, 0x1, 0, 0, 0, 0}, b)

	f, err := Parse(b)
	require.NoError(t, err)
	require.True(t, f.Has(FlagAck))
	require.Equal(t, uint32(0), f.Length)
}

func TestEditedBodyKeepsFrameFlags(t *testing.T) {
	testlog.Start(t)
	rec, err := Build(TypeData, FlagPadded, 1, schema.Values{
		"pad_len": 2,
		"data":    []byte("hi"),
		"padding": []byte{0, 0},
	})
	require.NoError(t, err)
	body, ok := rec.Value("frame").(*schema.Record)
	require.True(t, ok)

	require.NoError(t, body.Set("data", []byte("hello")))
	b, err := body.Bytes()
	require.NoError(t, err)
	require.Equal(t, append([]byte{2}, append([]byte("hello"), 0, 0)...), b)

	wire := frameBytes(t, TypeData, FlagPadded|FlagEndStream, 3, schema.Values{
		"pad_len": 1,
		"data":    []byte("x"),
		"padding": []byte{0},
	})
	f, err := Parse(wire)
	require.NoError(t, err)
	require.NoError(t, f.Body.Set("data", []byte("yz")))
	b, err = f.Body.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 'y', 'z', 0}, b)
}
