package protocol

import (
	"bytes"
	"errors"
	"io"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/wirekit/internal/testutil/testlog"
)

func TestReaderReadSemantics(t *testing.T) {
	testlog.Start(t)
	r := NewReader([]byte{1, 2, 3})

	b, err := r.Read(0)
	if err != nil || len(b) != 0 {
		t.Fatalf("zero read: %v %v", b, err)
	}
	b, err = r.Read(2)
	if err != nil || !bytes.Equal(b, []byte{1, 2}) {
		t.Fatalf("read 2: % x %v", b, err)
	}
	if _, err := r.Read(2); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if r.Offset() != 2 {
		t.Fatalf("failed read moved the cursor to %d", r.Offset())
	}
	if _, err := r.Read(1); err != nil {
		t.Fatalf("read last byte: %v", err)
	}
	if _, err := r.Read(1); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReaderRewindAndSince(t *testing.T) {
	testlog.Start(t)
	r := NewReader([]byte{1, 2, 3, 4})
	_, err := r.Read(3)
	require.NoError(t, err)

	since, err := r.Since(1)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 3}, since)

	require.NoError(t, r.Rewind(2))
	require.Equal(t, int64(1), r.Offset())
	require.Error(t, r.Rewind(5))

	rest, err := r.Read(-1)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 3, 4}, rest)
	require.Equal(t, 0, r.Remaining())
}

func TestStreamReaderReleaseKeepsOffsets(t *testing.T) {
	testlog.Start(t)
	r := NewStreamReader(bytes.NewReader([]byte{1, 2, 3, 4, 5}))
	require.Equal(t, -1, r.Remaining())

	_, err := r.Read(2)
	require.NoError(t, err)
	r.Release()
	require.Equal(t, int64(2), r.Offset())
	require.Error(t, r.Rewind(1), "released bytes cannot be rewound")

	b, err := r.Read(2)
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4}, b)
	require.NoError(t, r.Rewind(2))

	rest, err := r.Read(-1)
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4, 5}, rest)
	require.Equal(t, 0, r.Remaining())
	_, err = r.Read(1)
	require.ErrorIs(t, err, io.EOF)
}

func TestPacketContext(t *testing.T) {
	testlog.Start(t)
	parent := NewPacket(nil)
	parent.Set("flags", uint64(3))

	pkt := NewPacket(parent)
	require.Equal(t, -1, pkt.Remaining)
	pkt.Set("b", uint64(2))
	pkt.Set("a", int64(1))
	pkt.Set("b", uint64(5))
	pkt.Set("bits", map[string]uint64{"df": 1, "mf": 0})

	require.Equal(t, []string{"b", "a", "bits"}, pkt.Keys())
	require.Equal(t, int64(5), pkt.Int("b"))
	require.True(t, IsNoValue(pkt.Value("missing")))
	require.Equal(t, int64(0), pkt.Int("missing"))
	require.True(t, pkt.Flag("bits", "df"))
	require.False(t, pkt.Flag("bits", "mf"))
	require.Equal(t, int64(3), pkt.Parent.Int("flags"))

	clone := pkt.Clone()
	clone.Set("c", 1)
	require.False(t, pkt.Has("c"))
	require.Same(t, parent, clone.Parent)
}

func TestNumericConversions(t *testing.T) {
	testlog.Start(t)
	for _, v := range []any{int(7), int8(7), uint16(7), uint32(7), uint64(7), big.NewInt(7)} {
		n, ok := ToInt64(v)
		require.True(t, ok, "%T", v)
		require.Equal(t, int64(7), n)
	}
	_, ok := ToInt64("7")
	require.False(t, ok)

	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	_, ok = ToInt64(huge)
	require.False(t, ok)
	b, ok := ToBig(uint64(1 << 63))
	require.True(t, ok)
	require.Equal(t, "9223372036854775808", b.String())
}

func TestErrorTaxonomy(t *testing.T) {
	testlog.Start(t)
	require.ErrorIs(t, &NoDefaultValue{Field: "x"}, ErrNoDefaultValue)
	require.ErrorIs(t, FieldValuef("x", "bad %d", 1), ErrFieldValue)
	require.ErrorIs(t, &UnsupportedCall{Field: "x", Op: "length"}, ErrUnsupportedCall)
	require.ErrorIs(t, &UnknownFieldWarning{Schema: "s", Field: "x"}, ErrUnknownField)

	malformed := &MalformedError{Schema: "s", Reason: "r"}
	require.ErrorIs(t, malformed, ErrMalformed)
	require.ErrorIs(t, malformed, ErrFieldValue)

	wrapped := &FieldValueError{Field: "x", Reason: "short read", Err: io.EOF}
	require.ErrorIs(t, wrapped, io.EOF)
}
