package pcap

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/schema"
)

// Limits constrains what a Reader accepts from a file.
type Limits struct {
	MaxSnapLen uint32
	MaxRecords int
}

func DefaultLimits() Limits {
	return Limits{
		MaxSnapLen: 256 * 1024,
		MaxRecords: 0,
	}
}

type Option func(*Reader)

// WithLinkDecoder decodes record payloads of the given link type.
func WithLinkDecoder(link int64, dec schema.Decoder) Option {
	return func(r *Reader) { r.decoders[link] = dec }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reader) { r.logger = logger }
}

// Reader iterates the records of a capture file. It is not safe for
// concurrent use.
type Reader struct {
	src      *protocol.Reader
	header   GlobalHeader
	ctx      *protocol.Packet
	limits   Limits
	decoders map[int64]schema.Decoder
	logger   zerolog.Logger
	count    int
}

// NewReader reads the global header from r.
func NewReader(r io.Reader, limits Limits, opts ...Option) (*Reader, error) {
	out := &Reader{
		src:      protocol.NewStreamReader(r),
		limits:   limits,
		decoders: make(map[int64]schema.Decoder),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(out)
	}

	rec, err := Header.Unpack(out.src, GlobalHeaderLen, nil)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, protocol.ErrTruncated) {
			return nil, fmt.Errorf("%w: %v", ErrShortHeader, err)
		}
		return nil, err
	}
	out.header, err = headerView(rec)
	if err != nil {
		return nil, err
	}

	out.ctx = protocol.NewPacket(nil)
	rec.Range(func(name string, v any) bool {
		out.ctx.Set(name, v)
		return true
	})
	out.ctx.Set(limitKey, int64(limits.MaxSnapLen))
	out.ctx.Set(decodersKey, out.decoders)
	out.src.Release()

	out.logger.Debug().
		Str("network", out.header.Network.String()).
		Uint16("version_major", out.header.VersionMajor).
		Uint16("version_minor", out.header.VersionMinor).
		Uint32("snaplen", out.header.SnapLen).
		Bool("nanosecond", out.header.Nanosecond).
		Msg("pcap header")
	return out, nil
}

func (r *Reader) Header() GlobalHeader { return r.header }

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	if r.limits.MaxRecords > 0 && r.count >= r.limits.MaxRecords {
		return Record{}, ErrTooManyRecords
	}
	offset := r.src.Offset()
	rec, err := Frame.Unpack(r.src, -1, r.ctx)
	if err != nil {
		if errors.Is(err, io.EOF) && r.src.Offset() == offset {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("pcap: record %d at offset %d: %w", r.count+1, offset, err)
	}
	r.src.Release()
	r.count++

	out, err := recordView(rec, r.header)
	if err != nil {
		return Record{}, err
	}
	out.Index = r.count
	out.Offset = offset
	r.logger.Debug().
		Int("index", out.Index).
		Int64("offset", offset).
		Uint32("caplen", out.CapLen).
		Uint32("origlen", out.OrigLen).
		Bool("decoded", out.Next != nil).
		Msg("pcap record")
	return out, nil
}

// Count is the number of records returned so far.
func (r *Reader) Count() int { return r.count }
