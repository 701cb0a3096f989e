package tlv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/schema"
	"github.com/danmuck/wirekit/internal/testutil/testlog"
)

var word = Body("tlv_word", schema.Uint16("value"))

func registry() *schema.Registry {
	return NewRegistry("test_items").MustRegister(word, 0x05)
}

func TestDecodeDispatchesByType(t *testing.T) {
	testlog.Start(t)
	reg := registry()

	known := []byte{0x00, 0x05, 0x00, 0x02, 0xaa, 0xbb}
	items, err := Decode(known, reg)
	if err != nil {
		t.Fatalf("decode known item: %v", err)
	}
	rec, ok := items.Get(0x05)
	if !ok {
		t.Fatalf("item 0x05 missing: %v", items.Keys())
	}
	if rec.Schema() != word {
		t.Fatalf("expected %s, got %s", word.Name(), rec.Name())
	}
	if rec.Int("value") != 0xaabb {
		t.Fatalf("unexpected value: %v", rec.Value("value"))
	}
	b, err := rec.Bytes()
	if err != nil || !bytes.Equal(b, known) {
		t.Fatalf("re-encode mismatch: % x %v", b, err)
	}

	unknown := []byte{0x00, 0x09, 0x00, 0x02, 0xaa, 0xbb}
	items, err = Decode(unknown, reg)
	if err != nil {
		t.Fatalf("decode unknown item: %v", err)
	}
	rec, ok = items.Get(0x09)
	if !ok {
		t.Fatalf("item 0x09 missing")
	}
	if rec.Schema() != Unknown {
		t.Fatalf("expected the default schema, got %s", rec.Name())
	}
	b, err = rec.Pack(nil)
	if err != nil || !bytes.Equal(b, unknown) {
		t.Fatalf("re-encode mismatch: % x %v", b, err)
	}
}

func TestDecodeKeepsRepeatedItemsInOrder(t *testing.T) {
	testlog.Start(t)
	payload := []byte{
		0x00, 0x05, 0x00, 0x02, 0x00, 0x01,
		0x00, 0x07, 0x00, 0x00,
		0x00, 0x05, 0x00, 0x02, 0x00, 0x02,
	}
	items, err := Decode(payload, registry())
	require.NoError(t, err)
	require.Equal(t, 3, items.Len())
	require.Equal(t, []int64{5, 7}, items.Keys())

	words := items.GetAll(0x05)
	require.Len(t, words, 2)
	require.Equal(t, int64(1), words[0].Int("value"))
	require.Equal(t, int64(2), words[1].Int("value"))

	recs := make([]*schema.Record, 0, items.Len())
	for _, e := range items.Entries() {
		recs = append(recs, e.Value)
	}
	out, err := Encode(recs)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestDecodeRejectsOverrun(t *testing.T) {
	testlog.Start(t)
	_, err := Decode([]byte{0x00, 0x09, 0x00, 0x05, 0xaa, 0xbb}, registry())
	require.ErrorIs(t, err, protocol.ErrFieldValue)

	_, err = Decode([]byte{0x00, 0x05, 0x00, 0x03, 0xaa, 0xbb, 0xcc}, registry())
	require.ErrorIs(t, err, protocol.ErrMalformed, "body shorter than its announced length")
}

func TestDecodeEmptyPayload(t *testing.T) {
	testlog.Start(t)
	items, err := Decode(nil, registry())
	require.NoError(t, err)
	require.Equal(t, 0, items.Len())
}

func TestBuildItem(t *testing.T) {
	testlog.Start(t)
	rec, err := word.Build(schema.Values{"type": 0x05, "length": 2, "value": 0x1234})
	require.NoError(t, err)
	b, err := rec.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x05, 0x00, 0x02, 0x12, 0x34}, b)

	require.Error(t, registry().Register(schema.New("flat", schema.Uint8("type")), 0x06))
}
