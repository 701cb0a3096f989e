// Package ipv4 declares the IPv4 header and its options on the schema
// engine.
package ipv4

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/enum"
	"github.com/danmuck/wirekit/internal/protocol/schema"
)

const (
	MinHeaderLen = 20
	MaxHeaderLen = 60
)

// Header is the IPv4 datagram: fixed header, options, padding up to the
// header length, then the payload up to the total length.
var Header = schema.New("ipv4",
	schema.Bits("vihl", 1, []schema.BitSpec{
		{Name: "version", Start: 0, Length: 4},
		{Name: "ihl", Start: 4, Length: 4},
	}, schema.Default(map[string]uint64{"version": 4, "ihl": 5})),
	schema.Bits("tos", 1, []schema.BitSpec{
		{Name: "pre", Start: 0, Length: 3},
		{Name: "del", Start: 3, Length: 1},
		{Name: "thr", Start: 4, Length: 1},
		{Name: "rel", Start: 5, Length: 1},
		{Name: "ecn", Start: 6, Length: 2},
	}, schema.Default(map[string]uint64{})),
	schema.Uint16("length", schema.Default(MinHeaderLen)),
	schema.Uint16("id", schema.Default(0)),
	schema.Bits("flags", 2, []schema.BitSpec{
		{Name: "df", Start: 1, Length: 1},
		{Name: "mf", Start: 2, Length: 1},
		{Name: "offset", Start: 3, Length: 13},
	}, schema.Default(map[string]uint64{})),
	schema.Uint8("ttl", schema.Default(64)),
	schema.Enum("proto", 1, TransType, schema.Default(int64(255))),
	schema.Bytes("chksum", schema.Len(2), schema.Default([]byte{0, 0})),
	schema.IPv4("src", schema.Default(netip.IPv4Unspecified())),
	schema.IPv4("dst", schema.Default(netip.IPv4Unspecified())),
	schema.Options("options", OptionRegistry, "type", schema.LenFunc(optionsLen), schema.EndOfList(OptEOOL)),
	schema.Padding("padding", schema.LenFunc(optionPadding)),
	schema.Payload("payload", schema.LenFunc(payloadLen)),
).With(schema.WithPostProcess(checkHeader))

func headerLen(pkt *protocol.Packet) (int, error) {
	ihl := pkt.Bit("vihl", "ihl")
	if ihl < 5 {
		return 0, &protocol.MalformedError{Schema: "ipv4", Reason: fmt.Sprintf("ihl %d < 5", ihl)}
	}
	return int(ihl) * 4, nil
}

func optionsLen(pkt *protocol.Packet) (int, error) {
	n, err := headerLen(pkt)
	if err != nil {
		return 0, err
	}
	return n - MinHeaderLen, nil
}

func optionPadding(pkt *protocol.Packet) (int, error) {
	return pkt.OptionPadding, nil
}

// payloadLen follows the total length, cut short when the capture holds
// fewer bytes.
func payloadLen(pkt *protocol.Packet) (int, error) {
	hdr, err := headerLen(pkt)
	if err != nil {
		return 0, err
	}
	total := int(pkt.Int("length"))
	if total < hdr {
		return 0, &protocol.MalformedError{Schema: "ipv4", Reason: fmt.Sprintf("total length %d < header length %d", total, hdr)}
	}
	n := total - hdr
	if pkt.Remaining >= 0 && n > pkt.Remaining {
		n = pkt.Remaining
	}
	return n, nil
}

func checkHeader(rec *schema.Record, pkt *protocol.Packet) (*schema.Record, error) {
	if v := pkt.Bit("vihl", "version"); v != 4 {
		return nil, &protocol.MalformedError{Schema: "ipv4", Reason: fmt.Sprintf("version %d", v)}
	}
	return rec, nil
}

// Checksum is the RFC 791 header checksum of hdr with its checksum
// octets treated as zero.
func Checksum(hdr []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(hdr); i += 2 {
		if i == 10 {
			continue
		}
		sum += uint32(binary.BigEndian.Uint16(hdr[i:]))
	}
	if len(hdr)%2 == 1 {
		sum += uint32(hdr[len(hdr)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}

// Datagram is the typed view of a decoded Header record.
type Datagram struct {
	Version        uint8
	IHL            uint8
	Precedence     uint8
	ECN            uint8
	TotalLen       uint16
	ID             uint16
	DontFragment   bool
	MoreFragments  bool
	FragmentOffset uint16
	TTL            uint8
	Protocol       *enum.Member
	Checksum       uint16
	Src            netip.Addr
	Dst            netip.Addr
	Options        *schema.MultiMap
	Payload        []byte

	record *schema.Record
}

// View maps a Header record onto a Datagram.
func View(rec *schema.Record) (*Datagram, error) {
	if rec.Schema() != Header {
		return nil, fmt.Errorf("ipv4: view of %s record", rec.Name())
	}
	bits := func(name, sub string) uint64 {
		m, _ := rec.Value(name).(map[string]uint64)
		return m[sub]
	}
	sum, _ := rec.Value("chksum").([]byte)
	payload, err := rec.Payload()
	if err != nil {
		return nil, err
	}
	d := &Datagram{
		Version:        uint8(bits("vihl", "version")),
		IHL:            uint8(bits("vihl", "ihl")),
		Precedence:     uint8(bits("tos", "pre")),
		ECN:            uint8(bits("tos", "ecn")),
		TotalLen:       uint16(rec.Int("length")),
		ID:             uint16(rec.Int("id")),
		DontFragment:   bits("flags", "df") != 0,
		MoreFragments:  bits("flags", "mf") != 0,
		FragmentOffset: uint16(bits("flags", "offset")) * 8,
		TTL:            uint8(rec.Int("ttl")),
		Protocol:       TransType.Get(rec.Int("proto")),
		Payload:        payload,
		record:         rec,
	}
	if len(sum) == 2 {
		d.Checksum = binary.BigEndian.Uint16(sum)
	}
	d.Src, _ = rec.Value("src").(netip.Addr)
	d.Dst, _ = rec.Value("dst").(netip.Addr)
	if opts, ok := rec.Value("options").(*schema.MultiMap); ok {
		d.Options = opts
	} else {
		d.Options = schema.NewMultiMap()
	}
	return d, nil
}

func (d *Datagram) Record() *schema.Record { return d.record }

func (d *Datagram) Bytes() ([]byte, error) { return d.record.Bytes() }

func (d *Datagram) MarshalJSON() ([]byte, error) { return d.record.MarshalJSON() }

// HeaderBytes returns the header and options, without the payload.
func (d *Datagram) HeaderBytes() ([]byte, error) {
	b, err := d.record.Bytes()
	if err != nil {
		return nil, err
	}
	n := int(d.IHL) * 4
	if n > len(b) {
		return nil, fmt.Errorf("ipv4: header length %d exceeds %d bytes", n, len(b))
	}
	return b[:n], nil
}

// ChecksumValid verifies the header checksum.
func (d *Datagram) ChecksumValid() bool {
	hdr, err := d.HeaderBytes()
	if err != nil {
		return false
	}
	return Checksum(hdr) == d.Checksum
}

// Decode reads one datagram of at most length bytes. It serves as a
// next-layer decoder for capture files.
func Decode(r *protocol.Reader, length int) (schema.Packer, error) {
	rec, err := Header.Unpack(r, length, nil)
	if err != nil {
		return nil, err
	}
	return View(rec)
}

// Parse decodes b as one datagram.
func Parse(b []byte) (*Datagram, error) {
	rec, err := Header.UnpackBytes(b)
	if err != nil {
		return nil, err
	}
	return View(rec)
}

// Build assembles a datagram around payload. The header length, total
// length and checksum are computed; options are padded to a 4-octet
// boundary.
func Build(src, dst netip.Addr, proto int64, payload []byte, options ...*schema.Record) (*schema.Record, error) {
	optLen := 0
	for _, opt := range options {
		b, err := opt.Bytes()
		if err != nil {
			return nil, err
		}
		optLen += len(b)
	}
	padded := (optLen + 3) &^ 3
	hdr := MinHeaderLen + padded
	if hdr > MaxHeaderLen {
		return nil, protocol.FieldValuef("options", "%d option bytes exceed header room", optLen)
	}
	total := hdr + len(payload)
	if total > 0xffff {
		return nil, protocol.FieldValuef("length", "total length %d exceeds 65535", total)
	}
	if options == nil {
		options = []*schema.Record{}
	}

	rec, err := Header.Build(schema.Values{
		"vihl":    map[string]uint64{"version": 4, "ihl": uint64(hdr / 4)},
		"length":  total,
		"proto":   proto,
		"src":     src,
		"dst":     dst,
		"options": options,
		"payload": payload,
	})
	if err != nil {
		return nil, err
	}
	b, err := rec.Bytes()
	if err != nil {
		return nil, err
	}
	var sum [2]byte
	binary.BigEndian.PutUint16(sum[:], Checksum(b[:hdr]))
	if err := rec.Set("chksum", sum[:]); err != nil {
		return nil, err
	}
	if _, err := rec.Pack(nil); err != nil {
		return nil, err
	}
	return rec, nil
}
