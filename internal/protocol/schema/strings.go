package schema

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/danmuck/wirekit/internal/protocol"
)

// BytesField is a raw byte span. Without a length it packs the value as
// is and reads the remaining budget of the pass.
type BytesField struct {
	config
}

func Bytes(name string, opts ...FieldOption) *BytesField {
	return &BytesField{config: newConfig(name, -1, opts)}
}

func (f *BytesField) Materialize(pkt *protocol.Packet) (Field, error) {
	c, err := f.config.resolve(pkt)
	if err != nil {
		return nil, err
	}
	out := *f
	out.config = c
	return &out, nil
}

func (f *BytesField) Pack(v any, _ *protocol.Packet) ([]byte, error) {
	v, err := f.value(v)
	if err != nil {
		return nil, err
	}
	var b []byte
	switch t := v.(type) {
	case []byte:
		b = t
	case string:
		b = []byte(t)
	default:
		return nil, protocol.FieldValuef(f.name, "not a byte span: %T", v)
	}
	return fit(f.name, b, f.length)
}

func (f *BytesField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	return f.read(r, f.budget(pkt))
}

// fit right-pads b with zero bytes to n. Longer input is an error.
func fit(name string, b []byte, n int) ([]byte, error) {
	if n < 0 || len(b) == n {
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}
	if len(b) > n {
		return nil, protocol.FieldValuef(name, "%d bytes exceed width %d", len(b), n)
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// StringField is text in an explicit charset. Without one, the charset is
// detected from the bytes; undecodable input falls back to lossy UTF-8.
type StringField struct {
	config
}

func String(name string, opts ...FieldOption) *StringField {
	return &StringField{config: newConfig(name, -1, opts)}
}

func (f *StringField) Materialize(pkt *protocol.Packet) (Field, error) {
	c, err := f.config.resolve(pkt)
	if err != nil {
		return nil, err
	}
	out := *f
	out.config = c
	return &out, nil
}

// encoding resolves the declared charset. No charset is a nil encoding.
func (f *StringField) encoding() (encoding.Encoding, error) {
	if f.charset == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(f.charset)
	if err != nil {
		return nil, &protocol.FieldValueError{Field: f.name, Reason: "unknown charset " + strconv.Quote(f.charset), Err: err}
	}
	return enc, nil
}

func (f *StringField) Pack(v any, _ *protocol.Packet) ([]byte, error) {
	v, err := f.value(v)
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		if b, isBytes := v.([]byte); isBytes {
			return fit(f.name, b, f.length)
		}
		return nil, protocol.FieldValuef(f.name, "not a string: %T", v)
	}
	enc, err := f.encoding()
	if err != nil {
		return nil, err
	}
	b := []byte(s)
	if enc != nil {
		b, err = enc.NewEncoder().Bytes(b)
		if err != nil {
			return nil, &protocol.FieldValueError{Field: f.name, Reason: "encode " + f.charset, Err: err}
		}
	}
	if f.unquote {
		b = quote(b)
	}
	return fit(f.name, b, f.length)
}

func (f *StringField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	enc, err := f.encoding()
	if err != nil {
		return nil, err
	}
	b, err := f.read(r, f.budget(pkt))
	if err != nil {
		return nil, err
	}
	if f.unquote {
		b = unquote(b)
		if enc == nil {
			enc = unicode.UTF8
		}
	}
	return decodeText(b, enc), nil
}

// decodeText decodes b with enc, detecting the charset when enc is nil.
// Undecodable input becomes lossy UTF-8.
func decodeText(b []byte, enc encoding.Encoding) string {
	if enc == nil {
		if utf8.Valid(b) {
			return string(b)
		}
		enc, _, _ = charset.DetermineEncoding(b, "")
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}

// quote percent-escapes every byte outside the unreserved set and '/'.
func quote(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if unreserved(c) || c == '/' {
			out = append(out, c)
			continue
		}
		out = append(out, '%', hexUpper[c>>4], hexUpper[c&0xf])
	}
	return out
}

// unquote decodes %XX escapes. Malformed escapes are kept as written.
func unquote(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == '%' && i+2 < len(b) {
			hi, ok1 := unhex(b[i+1])
			lo, ok2 := unhex(b[i+2])
			if ok1 && ok2 {
				out = append(out, hi<<4|lo)
				i += 2
				continue
			}
		}
		out = append(out, b[i])
	}
	return out
}

const hexUpper = "0123456789ABCDEF"

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// BitSpec names a run of bits inside a bit group. Start counts from the
// most significant bit of the first byte.
type BitSpec struct {
	Name   string
	Start  int
	Length int
}

// BitField packs named sub-byte values into a fixed span. Overlapping
// specs are not checked.
type BitField struct {
	config
	specs []BitSpec
}

func Bits(name string, size int, specs []BitSpec, opts ...FieldOption) *BitField {
	return &BitField{config: newConfig(name, size, opts), specs: specs}
}

func (f *BitField) Specs() []BitSpec { return f.specs }

func (f *BitField) Materialize(pkt *protocol.Packet) (Field, error) {
	c, err := f.config.resolve(pkt)
	if err != nil {
		return nil, err
	}
	out := *f
	out.config = c
	return &out, nil
}

func (f *BitField) Pack(v any, _ *protocol.Packet) ([]byte, error) {
	v, err := f.value(v)
	if err != nil {
		return nil, err
	}
	values, ok := v.(map[string]uint64)
	if !ok {
		return nil, protocol.FieldValuef(f.name, "not a bit group: %T", v)
	}
	buf := make([]byte, f.length)
	for _, spec := range f.specs {
		val := values[spec.Name]
		if spec.Length < 64 && val>>uint(spec.Length) != 0 {
			return nil, protocol.FieldValuef(f.name, "%s=%d exceeds %d bits", spec.Name, val, spec.Length)
		}
		if spec.Start+spec.Length > f.length*8 {
			return nil, protocol.FieldValuef(f.name, "%s overruns %d bytes", spec.Name, f.length)
		}
		for i := 0; i < spec.Length; i++ {
			if val>>uint(spec.Length-1-i)&1 == 1 {
				bit := spec.Start + i
				buf[bit/8] |= 0x80 >> uint(bit%8)
			}
		}
	}
	return buf, nil
}

func (f *BitField) Unpack(r *protocol.Reader, _ *protocol.Packet) (any, error) {
	b, err := f.read(r, f.length)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint64, len(f.specs))
	for _, spec := range f.specs {
		if spec.Start+spec.Length > len(b)*8 {
			return nil, protocol.FieldValuef(f.name, "%s overruns %d bytes", spec.Name, len(b))
		}
		var val uint64
		for i := 0; i < spec.Length; i++ {
			bit := spec.Start + i
			val = val<<1 | uint64(b[bit/8]>>(7-uint(bit%8))&1)
		}
		out[spec.Name] = val
	}
	return out, nil
}
