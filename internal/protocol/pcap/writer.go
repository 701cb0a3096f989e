package pcap

import (
	"fmt"
	"io"
	"time"

	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/schema"
)

// Writer emits a capture file using the byte order of its header.
type Writer struct {
	w      io.Writer
	header GlobalHeader
	ctx    *protocol.Packet
	limits Limits
}

// NewWriter writes hdr, a Header record, to w.
func NewWriter(w io.Writer, hdr *schema.Record, limits Limits) (*Writer, error) {
	view, err := headerView(hdr)
	if err != nil {
		return nil, err
	}
	b, err := hdr.Bytes()
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	ctx := protocol.NewPacket(nil)
	hdr.Range(func(name string, v any) bool {
		ctx.Set(name, v)
		return true
	})
	return &Writer{w: w, header: view, ctx: ctx, limits: limits}, nil
}

// WriteRecord writes one record holding data captured at ts.
func (w *Writer) WriteRecord(ts time.Time, data []byte, origLen int) error {
	if w.limits.MaxSnapLen > 0 && uint32(len(data)) > w.limits.MaxSnapLen {
		return fmt.Errorf("%w: %d > %d", ErrSnapLenExceeded, len(data), w.limits.MaxSnapLen)
	}
	if origLen < len(data) {
		origLen = len(data)
	}
	frac := ts.Nanosecond()
	if !w.header.Nanosecond {
		frac /= int(time.Microsecond)
	}
	rec, err := Frame.BuildIn(schema.Values{
		"ts_sec":   ts.Unix(),
		"ts_usec":  frac,
		"incl_len": len(data),
		"orig_len": origLen,
		"packet":   data,
	}, w.ctx)
	if err != nil {
		return err
	}
	b, err := rec.Bytes()
	if err != nil {
		return err
	}
	_, err = w.w.Write(b)
	return err
}
