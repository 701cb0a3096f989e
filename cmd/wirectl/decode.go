package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/wirekit/internal/config"
	"github.com/danmuck/wirekit/internal/observability"
	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/http2"
	"github.com/danmuck/wirekit/internal/protocol/ipv4"
	"github.com/danmuck/wirekit/internal/protocol/pcap"
	"github.com/danmuck/wirekit/internal/protocol/schema"
)

// rawPayload stands in for a link layer that failed to decode.
type rawPayload []byte

func (p rawPayload) Bytes() ([]byte, error) { return []byte(p), nil }

// lenient falls back to the raw bytes when dec fails, so one bad datagram
// does not end the capture.
func lenient(source string, dec schema.Decoder, logger zerolog.Logger) schema.Decoder {
	return func(r *protocol.Reader, length int) (schema.Packer, error) {
		start := r.Offset()
		out, err := dec(r, length)
		if err == nil {
			return out, nil
		}
		logger.Warn().Err(err).Str("source", source).Int64("offset", start).Msg("link layer kept raw")
		observability.RecordDecodeFailure(source, "link")
		if rerr := r.Rewind(int(r.Offset() - start)); rerr != nil {
			return nil, err
		}
		b, rerr := r.Read(length)
		if rerr != nil {
			return nil, err
		}
		return rawPayload(b), nil
	}
}

func linkDecoders(source string, strict bool, logger zerolog.Logger) []pcap.Option {
	dec := schema.Decoder(ipv4.Decode)
	if !strict {
		dec = lenient(source, dec, logger)
	}
	return []pcap.Option{
		pcap.WithLinkDecoder(pcap.LinkRaw, dec),
		pcap.WithLinkDecoder(pcap.LinkIPv4, dec),
		pcap.WithLogger(logger),
	}
}

func decodePcap(input string, in io.Reader, cfg config.DecodeConfig, enc encoder, logger zerolog.Logger) error {
	source := filepath.Base(input)
	r, err := pcap.NewReader(in, cfg.Limits(), linkDecoders(source, cfg.Strict, logger)...)
	if err != nil {
		observability.RecordDecodeFailure(source, "header")
		return err
	}
	hdr := r.Header()
	link := hdr.Network.String()
	logger.Info().
		Str("source", source).
		Str("link", link).
		Uint32("snaplen", hdr.SnapLen).
		Bool("nanosecond", hdr.Nanosecond).
		Msg("capture opened")

	for {
		began := time.Now()
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, pcap.ErrTooManyRecords) {
			logger.Info().Str("source", source).Int("records", r.Count()).Msg("record limit reached")
			break
		}
		if err != nil {
			observability.RecordDecodeFailure(source, "record")
			return err
		}
		observability.RecordDecoded(source, link, int(rec.CapLen), time.Since(began))

		ts := rec.Timestamp
		doc := document{
			Source:    source,
			Index:     rec.Index,
			Offset:    rec.Offset,
			Timestamp: &ts,
			CapLen:    rec.CapLen,
			OrigLen:   rec.OrigLen,
			Link:      link,
			Layer:     rec.Data,
		}
		if rec.Next != nil {
			doc.Layer = rec.Next
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode record %d: %w", rec.Index, err)
		}
	}
	logger.Info().Str("source", source).Int("records", r.Count()).Msg("capture done")
	return nil
}

func decodeHTTP2(input string, in io.Reader, enc encoder, logger zerolog.Logger) error {
	source := filepath.Base(input)
	b, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	began := time.Now()
	frames, err := http2.ReadFrames(b)
	if err != nil {
		observability.RecordDecodeFailure(source, "frame")
		if len(frames) == 0 {
			return err
		}
		logger.Warn().Err(err).Str("source", source).Int("frames", len(frames)).Msg("stream cut short")
	}
	per := time.Since(began)
	if len(frames) > 0 {
		per /= time.Duration(len(frames))
	}

	offset := int64(0)
	if len(b) >= len(http2.Preface) && string(b[:len(http2.Preface)]) == http2.Preface {
		offset = int64(len(http2.Preface))
	}
	for i, f := range frames {
		size := http2.HeaderLen + int(f.Length)
		observability.RecordDecoded(source, f.Type.String(), size, per)
		doc := document{
			Source: source,
			Index:  i + 1,
			Offset: offset,
			Link:   f.Type.String(),
			Layer:  f.Record,
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode frame %d: %w", i+1, err)
		}
		offset += int64(size)
	}
	logger.Info().Str("source", source).Int("frames", len(frames)).Msg("stream done")
	return err
}
