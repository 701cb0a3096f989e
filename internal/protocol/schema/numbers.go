package schema

import (
	"math/big"

	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/enum"
)

// NumberField is a fixed-width integer. Widths up to 8 bytes decode to
// uint64 (or int64 when signed); wider fields decode to *big.Int.
type NumberField struct {
	config
	signed bool
}

func Uint(name string, size int, opts ...FieldOption) *NumberField {
	return &NumberField{config: newConfig(name, size, opts)}
}

func Int(name string, size int, opts ...FieldOption) *NumberField {
	return &NumberField{config: newConfig(name, size, opts), signed: true}
}

func Uint8(name string, opts ...FieldOption) *NumberField  { return Uint(name, 1, opts...) }
func Uint16(name string, opts ...FieldOption) *NumberField { return Uint(name, 2, opts...) }
func Uint32(name string, opts ...FieldOption) *NumberField { return Uint(name, 4, opts...) }
func Uint64(name string, opts ...FieldOption) *NumberField { return Uint(name, 8, opts...) }
func Int8(name string, opts ...FieldOption) *NumberField   { return Int(name, 1, opts...) }
func Int16(name string, opts ...FieldOption) *NumberField  { return Int(name, 2, opts...) }
func Int32(name string, opts ...FieldOption) *NumberField  { return Int(name, 4, opts...) }
func Int64(name string, opts ...FieldOption) *NumberField  { return Int(name, 8, opts...) }

func (f *NumberField) Materialize(pkt *protocol.Packet) (Field, error) {
	c, err := f.config.resolve(pkt)
	if err != nil {
		return nil, err
	}
	out := *f
	out.config = c
	return &out, nil
}

// width is the number of significant bits.
func (f *NumberField) width() int {
	if f.bits > 0 && f.bits < f.length*8 {
		return f.bits
	}
	return f.length * 8
}

func (f *NumberField) Pack(v any, _ *protocol.Packet) ([]byte, error) {
	v, err := f.value(v)
	if err != nil {
		return nil, err
	}
	n, ok := protocol.ToBig(v)
	if !ok {
		return nil, protocol.FieldValuef(f.name, "not an integer: %T", v)
	}
	return f.encode(n)
}

func (f *NumberField) encode(n *big.Int) ([]byte, error) {
	if f.length <= 0 {
		return nil, protocol.FieldValuef(f.name, "invalid width %d", f.length)
	}
	bits := uint(f.width())
	limit := new(big.Int).Lsh(big.NewInt(1), bits)
	if f.signed {
		half := new(big.Int).Rsh(limit, 1)
		lo := new(big.Int).Neg(half)
		if n.Cmp(lo) < 0 || n.Cmp(half) >= 0 {
			return nil, protocol.FieldValuef(f.name, "value %s exceeds %d signed bits", n, bits)
		}
		if n.Sign() < 0 {
			n = new(big.Int).Add(n, limit)
		}
	} else if n.Sign() < 0 || n.Cmp(limit) >= 0 {
		return nil, protocol.FieldValuef(f.name, "value %s exceeds %d bits", n, bits)
	}

	buf := make([]byte, f.length)
	n.FillBytes(buf)
	if isLittle(f.order) {
		reverse(buf)
	}
	return buf, nil
}

func (f *NumberField) Unpack(r *protocol.Reader, _ *protocol.Packet) (any, error) {
	b, err := f.read(r, f.length)
	if err != nil {
		return nil, err
	}
	return f.decode(b), nil
}

func (f *NumberField) decode(b []byte) any {
	raw := make([]byte, len(b))
	copy(raw, b)
	if isLittle(f.order) {
		reverse(raw)
	}
	bits := uint(f.width())
	n := new(big.Int).SetBytes(raw)
	if bits < uint(len(raw)*8) {
		mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits), big.NewInt(1))
		n.And(n, mask)
	}
	if f.signed && n.Bit(int(bits)-1) == 1 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), bits))
	}
	if f.length > 8 {
		return n
	}
	if f.signed {
		return n.Int64()
	}
	return n.Uint64()
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// EnumField is an integer whose value is a member of an open namespace.
type EnumField struct {
	NumberField
	ns *enum.Namespace
}

func Enum(name string, size int, ns *enum.Namespace, opts ...FieldOption) *EnumField {
	return &EnumField{NumberField: NumberField{config: newConfig(name, size, opts)}, ns: ns}
}

func (f *EnumField) Namespace() *enum.Namespace { return f.ns }

func (f *EnumField) Materialize(pkt *protocol.Packet) (Field, error) {
	c, err := f.config.resolve(pkt)
	if err != nil {
		return nil, err
	}
	out := *f
	out.config = c
	return &out, nil
}

// Pack accepts a member, an integer code, or a label known to the namespace.
func (f *EnumField) Pack(v any, pkt *protocol.Packet) ([]byte, error) {
	v, err := f.value(v)
	if err != nil {
		return nil, err
	}
	if label, ok := v.(string); ok {
		m, found := f.ns.Find(label)
		if !found {
			return nil, protocol.FieldValuef(f.name, "unknown %s label %q", f.ns.Name(), label)
		}
		v = m
	}
	return f.NumberField.Pack(v, pkt)
}

func (f *EnumField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	v, err := f.NumberField.Unpack(r, pkt)
	if err != nil {
		return nil, err
	}
	code, ok := protocol.ToInt64(v)
	if !ok {
		return nil, protocol.FieldValuef(f.name, "code does not fit 64 bits")
	}
	return f.ns.Get(code), nil
}
