// Package pcap reads and writes classic libpcap capture files on top of
// the schema engine.
package pcap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/enum"
	"github.com/danmuck/wirekit/internal/protocol/schema"
)

const (
	GlobalHeaderLen = 24
	RecordHeaderLen = 16
)

var (
	MagicMicroLE = []byte{0xd4, 0xc3, 0xb2, 0xa1}
	MagicMicroBE = []byte{0xa1, 0xb2, 0xc3, 0xd4}
	MagicNanoLE  = []byte{0x4d, 0x3c, 0xb2, 0xa1}
	MagicNanoBE  = []byte{0xa1, 0xb2, 0x3c, 0x4d}
)

var (
	ErrInvalidMagic    = errors.New("pcap: invalid magic number")
	ErrShortHeader     = errors.New("pcap: short global header")
	ErrSnapLenExceeded = errors.New("pcap: record exceeds snap length limit")
	ErrTooManyRecords  = errors.New("pcap: record limit reached")
	ErrLengthMismatch  = errors.New("pcap: captured length exceeds original length")
)

// magic context key carried from the global header into record passes.
const magicKey = "magic_number"

// limitKey carries the reader's snap length limit into record passes.
const limitKey = "max_snaplen"

func magicOrder(pkt *protocol.Packet) (binary.ByteOrder, error) {
	for p := pkt; p != nil; p = p.Parent {
		v, ok := p.Get(magicKey)
		if !ok {
			continue
		}
		b, _ := v.([]byte)
		switch {
		case bytes.Equal(b, MagicMicroLE), bytes.Equal(b, MagicNanoLE):
			return binary.LittleEndian, nil
		case bytes.Equal(b, MagicMicroBE), bytes.Equal(b, MagicNanoBE):
			return binary.BigEndian, nil
		default:
			return nil, fmt.Errorf("%w: % x", ErrInvalidMagic, b)
		}
	}
	return nil, fmt.Errorf("%w: missing", ErrInvalidMagic)
}

func isNano(magic []byte) bool {
	return bytes.Equal(magic, MagicNanoLE) || bytes.Equal(magic, MagicNanoBE)
}

// Header is the global header. Every multi-byte field takes its byte order
// from the magic number.
var Header = schema.New("pcap_header",
	schema.Bytes("magic_number", schema.Len(4), schema.Default(MagicMicroLE)),
	schema.Uint16("version_major", schema.OrderFunc(magicOrder), schema.Default(2)),
	schema.Uint16("version_minor", schema.OrderFunc(magicOrder), schema.Default(4)),
	schema.Int32("thiszone", schema.OrderFunc(magicOrder), schema.Default(0)),
	schema.Uint32("sigfigs", schema.OrderFunc(magicOrder), schema.Default(0)),
	schema.Uint32("snaplen", schema.OrderFunc(magicOrder), schema.Default(262144)),
	schema.Enum("network", 4, LinkType, schema.OrderFunc(magicOrder), schema.Default(LinkEthernet)),
)

// Frame is one record: its header and the captured bytes, handed to the
// link-layer decoder resolved for the file.
var Frame = schema.New("pcap_frame",
	schema.Uint32("ts_sec", schema.OrderFunc(magicOrder)),
	schema.Uint32("ts_usec", schema.OrderFunc(magicOrder)),
	schema.Uint32("incl_len", schema.OrderFunc(magicOrder)),
	schema.Uint32("orig_len", schema.OrderFunc(magicOrder)),
	schema.Payload("packet", schema.LenFunc(capturedLen), schema.Next(linkDecoder)),
).With(schema.WithPostProcess(checkLengths))

func capturedLen(pkt *protocol.Packet) (int, error) {
	n := pkt.Int("incl_len")
	for p := pkt.Parent; p != nil; p = p.Parent {
		if limit, ok := p.Get(limitKey); ok {
			if ceiling, _ := protocol.ToInt64(limit); ceiling > 0 && n > ceiling {
				return 0, fmt.Errorf("%w: %d > %d", ErrSnapLenExceeded, n, ceiling)
			}
			break
		}
	}
	return int(n), nil
}

// decodersKey carries the link decoders of a reader into record passes.
const decodersKey = "link_decoders"

func linkDecoder(pkt *protocol.Packet) (schema.Decoder, error) {
	for p := pkt.Parent; p != nil; p = p.Parent {
		decs, ok := p.Value(decodersKey).(map[int64]schema.Decoder)
		if !ok {
			continue
		}
		return decs[p.Int("network")], nil
	}
	return nil, nil
}

func checkLengths(rec *schema.Record, _ *protocol.Packet) (*schema.Record, error) {
	if incl, orig := rec.Int("incl_len"), rec.Int("orig_len"); incl > orig {
		return nil, fmt.Errorf("%w: incl_len %d > orig_len %d", ErrLengthMismatch, incl, orig)
	}
	return rec, nil
}

// GlobalHeader is the typed view of a decoded Header record.
type GlobalHeader struct {
	ByteOrder    binary.ByteOrder
	Nanosecond   bool
	VersionMajor uint16
	VersionMinor uint16
	ThisZone     int32
	SigFigs      uint32
	SnapLen      uint32
	Network      *enum.Member
	Record       *schema.Record
}

func headerView(rec *schema.Record) (GlobalHeader, error) {
	magic, _ := rec.Value("magic_number").([]byte)
	pkt := protocol.NewPacket(nil)
	pkt.Set(magicKey, magic)
	order, err := magicOrder(pkt)
	if err != nil {
		return GlobalHeader{}, err
	}
	network := LinkType.Get(rec.Int("network"))
	return GlobalHeader{
		ByteOrder:    order,
		Nanosecond:   isNano(magic),
		VersionMajor: uint16(rec.Int("version_major")),
		VersionMinor: uint16(rec.Int("version_minor")),
		ThisZone:     int32(rec.Int("thiszone")),
		SigFigs:      uint32(rec.Int("sigfigs")),
		SnapLen:      uint32(rec.Int("snaplen")),
		Network:      network,
		Record:       rec,
	}, nil
}

// Record is the typed view of a decoded Frame record.
type Record struct {
	Index     int
	Timestamp time.Time
	CapLen    uint32
	OrigLen   uint32
	// Data is the captured bytes; Next is the decoded link layer when a
	// decoder was registered for the file's link type.
	Data   []byte
	Next   schema.Packer
	Frame  *schema.Record
	Offset int64
}

func recordView(rec *schema.Record, hdr GlobalHeader) (Record, error) {
	data, err := rec.Payload()
	if err != nil {
		return Record{}, err
	}
	frac := time.Duration(rec.Int("ts_usec"))
	if !hdr.Nanosecond {
		frac *= time.Microsecond
	}
	out := Record{
		Timestamp: time.Unix(rec.Int("ts_sec"), int64(frac)).UTC(),
		CapLen:    uint32(rec.Int("incl_len")),
		OrigLen:   uint32(rec.Int("orig_len")),
		Data:      data,
		Frame:     rec,
	}
	if next, ok := rec.Value("packet").(schema.Packer); ok {
		out.Next = next
	}
	return out, nil
}
