package main

import (
	"bufio"
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/wirekit/internal/config"
	"github.com/danmuck/wirekit/internal/protocol/http2"
	"github.com/danmuck/wirekit/internal/protocol/ipv4"
	"github.com/danmuck/wirekit/internal/protocol/pcap"
	"github.com/danmuck/wirekit/internal/protocol/schema"
	"github.com/danmuck/wirekit/internal/testutil/testlog"
)

func capture(t *testing.T, packets ...[]byte) *bytes.Buffer {
	t.Helper()
	hdr, err := pcap.Header.Build(schema.Values{
		"magic_number": pcap.MagicMicroLE,
		"network":      pcap.LinkRaw,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := pcap.NewWriter(&buf, hdr, pcap.DefaultLimits())
	require.NoError(t, err)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 250000000, time.UTC)
	for i, p := range packets {
		require.NoError(t, w.WriteRecord(ts.Add(time.Duration(i)*time.Second), p, 0))
	}
	return &buf
}

func datagram(t *testing.T) []byte {
	t.Helper()
	rec, err := ipv4.Build(
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("10.0.0.2"),
		ipv4.ProtoUDP,
		[]byte("hello"),
	)
	require.NoError(t, err)
	b, err := rec.Bytes()
	require.NoError(t, err)
	return b
}

func jsonLines(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var docs []map[string]any
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &doc))
		docs = append(docs, doc)
	}
	require.NoError(t, sc.Err())
	return docs
}

func TestParseFlags(t *testing.T) {
	testlog.Start(t)
	opts, err := parseFlags([]string{"-mode", "http2", "-format", "yaml", "-max-records", "3", "a.bin", "b.bin"})
	require.NoError(t, err)
	require.Equal(t, modeHTTP2, opts.mode)
	require.Equal(t, []string{"a.bin", "b.bin"}, opts.inputs)

	_, err = parseFlags([]string{"-mode", "tcp", "a.bin"})
	require.ErrorContains(t, err, "unknown mode")

	_, err = parseFlags(nil)
	require.ErrorContains(t, err, "no input files")
}

func TestResolveAppliesOverrides(t *testing.T) {
	testlog.Start(t)
	cfg, err := resolve(options{format: "cbor", maxRecords: 2, strict: true})
	require.NoError(t, err)
	require.Equal(t, config.FormatCBOR, cfg.Output.Format)
	require.Equal(t, 2, cfg.Decode.MaxRecords)
	require.True(t, cfg.Decode.Strict)

	_, err = resolve(options{format: "xml", maxRecords: -1})
	require.Error(t, err)
}

func TestDecodePcapWritesJSONLines(t *testing.T) {
	testlog.Start(t)
	in := capture(t, datagram(t), datagram(t))

	var out bytes.Buffer
	enc, err := newEncoder(config.FormatJSON, &out)
	require.NoError(t, err)
	require.NoError(t, decodePcap("unit.pcap", in, config.Default().Decode, enc, zerolog.Nop()))

	docs := jsonLines(t, &out)
	require.Len(t, docs, 2)
	require.Equal(t, "unit.pcap", docs[0]["source"])
	require.Equal(t, float64(1), docs[0]["index"])
	require.Equal(t, float64(24), docs[0]["offset"])
	require.Equal(t, "RAW", docs[0]["link"])
	require.Equal(t, "2024-03-01T12:00:00.25Z", docs[0]["timestamp"])

	layer, ok := docs[1]["layer"].(map[string]any)
	require.True(t, ok, "layer should be an object, got %T", docs[1]["layer"])
	require.Equal(t, "10.0.0.1", layer["src"])
	require.Equal(t, "10.0.0.2", layer["dst"])
	require.Equal(t, "UDP", layer["proto"])
}

func TestDecodePcapHonorsRecordLimit(t *testing.T) {
	testlog.Start(t)
	in := capture(t, datagram(t), datagram(t), datagram(t))

	cfg := config.Default().Decode
	cfg.MaxRecords = 1
	var out bytes.Buffer
	enc, err := newEncoder(config.FormatJSON, &out)
	require.NoError(t, err)
	require.NoError(t, decodePcap("limit.pcap", in, cfg, enc, zerolog.Nop()))
	require.Len(t, jsonLines(t, &out), 1)
}

func TestDecodePcapKeepsUndecodableLayerRaw(t *testing.T) {
	testlog.Start(t)
	bad := []byte{0x45, 0x00, 0x00}

	var out bytes.Buffer
	enc, err := newEncoder(config.FormatJSON, &out)
	require.NoError(t, err)
	require.NoError(t, decodePcap("bad.pcap", capture(t, bad), config.Default().Decode, enc, zerolog.Nop()))

	docs := jsonLines(t, &out)
	require.Len(t, docs, 1)
	require.Equal(t, "RQAA", docs[0]["layer"])

	strict := config.Default().Decode
	strict.Strict = true
	out.Reset()
	err = decodePcap("bad.pcap", capture(t, bad), strict, enc, zerolog.Nop())
	require.Error(t, err)
	require.Empty(t, out.String())
}

func TestCBOROutputFlattensLayers(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	enc, err := newEncoder(config.FormatCBOR, &out)
	require.NoError(t, err)
	require.NoError(t, decodePcap("unit.pcap", capture(t, datagram(t)), config.Default().Decode, enc, zerolog.Nop()))

	var doc map[string]any
	require.NoError(t, cbor.Unmarshal(out.Bytes(), &doc))
	require.Equal(t, "unit.pcap", doc["source"])
	layer, ok := doc["layer"].(map[any]any)
	if !ok {
		t.Fatalf("layer should decode as a map, got %T", doc["layer"])
	}
	require.Equal(t, "10.0.0.1", layer["src"])
	require.Equal(t, []byte("hello"), layer["payload"])
}

func TestYAMLOutputKeepsFieldOrder(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	enc, err := newEncoder(config.FormatYAML, &out)
	require.NoError(t, err)
	require.NoError(t, decodePcap("unit.pcap", capture(t, datagram(t)), config.Default().Decode, enc, zerolog.Nop()))
	require.NoError(t, enc.Close())

	text := out.String()
	require.Contains(t, text, "src: 10.0.0.1")
	vihl := strings.Index(text, "vihl:")
	src := strings.Index(text, "src:")
	payload := strings.Index(text, "payload:")
	require.True(t, vihl >= 0 && vihl < src && src < payload, "fields out of order:\n%s", text)
	require.Contains(t, text, "payload: 68656c6c6f")
}

func TestDecodeHTTP2Stream(t *testing.T) {
	testlog.Start(t)
	settings, err := http2.Build(http2.TypeSettings, 0, 0, schema.Values{
		"settings": []any{
			schema.Values{"id": http2.SettingMaxConcurrentStreams, "value": 100},
		},
	})
	require.NoError(t, err)
	data, err := http2.Build(http2.TypeData, http2.FlagEndStream, 1, schema.Values{"data": []byte("ok")})
	require.NoError(t, err)

	stream := []byte(http2.Preface)
	for _, rec := range []*schema.Record{settings, data} {
		b, err := rec.Bytes()
		require.NoError(t, err)
		stream = append(stream, b...)
	}

	var out bytes.Buffer
	enc, err := newEncoder(config.FormatJSON, &out)
	require.NoError(t, err)
	require.NoError(t, decodeHTTP2("conn.bin", bytes.NewReader(stream), enc, zerolog.Nop()))

	docs := jsonLines(t, &out)
	require.Len(t, docs, 2)
	require.Equal(t, "SETTINGS", docs[0]["link"])
	require.Equal(t, float64(len(http2.Preface)), docs[0]["offset"])
	require.Equal(t, "DATA", docs[1]["link"])
	require.Equal(t, float64(len(http2.Preface)+http2.HeaderLen+6), docs[1]["offset"])
}

func TestExecuteReportsFailedInputsAfterWritingOutput(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pcap")
	require.NoError(t, os.WriteFile(good, capture(t, datagram(t)).Bytes(), 0o644))
	outPath := filepath.Join(dir, "out.jsonl")

	err := execute(options{
		mode:       modePcap,
		format:     config.FormatJSON,
		output:     outPath,
		maxRecords: -1,
		inputs:     []string{good, filepath.Join(dir, "missing.pcap")},
	}, zerolog.Nop())
	require.ErrorContains(t, err, "1 input(s) failed")
	require.ErrorContains(t, err, "missing.pcap")

	b, err := os.ReadFile(outPath)
	require.NoError(t, err)
	docs := jsonLines(t, bytes.NewBuffer(b))
	require.Len(t, docs, 1)
	require.Equal(t, "good.pcap", docs[0]["source"])

	require.NoError(t, execute(options{
		mode:       modePcap,
		output:     outPath,
		maxRecords: -1,
		inputs:     []string{good},
	}, zerolog.Nop()))
}
