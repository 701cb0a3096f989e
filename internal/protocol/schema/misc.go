package schema

import (
	"fmt"

	"github.com/danmuck/wirekit/internal/protocol"
)

// PaddingField reads its span and packs zeros unless the recorded bytes
// already have the right width.
type PaddingField struct {
	config
}

func Padding(name string, opts ...FieldOption) *PaddingField {
	return &PaddingField{config: newConfig(name, -1, opts)}
}

func (f *PaddingField) Materialize(pkt *protocol.Packet) (Field, error) {
	c, err := f.config.resolve(pkt)
	if err != nil {
		return nil, err
	}
	out := *f
	out.config = c
	return &out, nil
}

func (f *PaddingField) Pack(v any, pkt *protocol.Packet) ([]byte, error) {
	n := f.budget(pkt)
	if n < 0 {
		n = 0
	}
	if b, ok := v.([]byte); ok && len(b) == n {
		out := make([]byte, n)
		copy(out, b)
		return out, nil
	}
	return make([]byte, n), nil
}

func (f *PaddingField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	n := f.budget(pkt)
	if n <= 0 {
		return []byte{}, nil
	}
	return f.read(r, n)
}

// EmptyField occupies no bytes and carries no value.
type EmptyField struct {
	name string
}

func Empty(name string) *EmptyField { return &EmptyField{name: name} }

func (f *EmptyField) Name() string                                           { return f.name }
func (f *EmptyField) Default() any                                           { return protocol.NoValue }
func (f *EmptyField) Length() (int, error)                                   { return 0, nil }
func (f *EmptyField) Materialize(*protocol.Packet) (Field, error)            { return f, nil }
func (f *EmptyField) Pack(any, *protocol.Packet) ([]byte, error)             { return []byte{}, nil }
func (f *EmptyField) Unpack(*protocol.Reader, *protocol.Packet) (any, error) { return protocol.NoValue, nil }

// Predicate gates a conditional field.
type Predicate func(pkt *protocol.Packet) bool

// ConditionalField delegates to its inner field only while the predicate
// holds. Otherwise it packs nothing, reads nothing and records NoValue.
type ConditionalField struct {
	inner Field
	pred  Predicate
	state int
}

const (
	undecided = iota
	present
	absent
)

func Conditional(inner Field, pred Predicate) *ConditionalField {
	return &ConditionalField{inner: inner, pred: pred}
}

func (f *ConditionalField) Name() string { return f.inner.Name() }

func (f *ConditionalField) Default() any { return f.inner.Default() }

// Present reports the materialized decision.
func (f *ConditionalField) Present() bool { return f.state == present }

func (f *ConditionalField) Length() (int, error) {
	if f.state == absent {
		return 0, nil
	}
	return f.inner.Length()
}

func (f *ConditionalField) Materialize(pkt *protocol.Packet) (Field, error) {
	if !f.pred(pkt) {
		return &ConditionalField{inner: f.inner, pred: f.pred, state: absent}, nil
	}
	inner, err := f.inner.Materialize(pkt)
	if err != nil {
		return nil, err
	}
	return &ConditionalField{inner: inner, pred: f.pred, state: present}, nil
}

func (f *ConditionalField) resolved(pkt *protocol.Packet) (*ConditionalField, error) {
	if f.state != undecided {
		return f, nil
	}
	m, err := f.Materialize(pkt)
	if err != nil {
		return nil, err
	}
	return m.(*ConditionalField), nil
}

func (f *ConditionalField) Pack(v any, pkt *protocol.Packet) ([]byte, error) {
	c, err := f.resolved(pkt)
	if err != nil {
		return nil, err
	}
	if c.state == absent {
		return []byte{}, nil
	}
	return c.inner.Pack(v, pkt)
}

func (f *ConditionalField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	c, err := f.resolved(pkt)
	if err != nil {
		return nil, err
	}
	if c.state == absent {
		return protocol.NoValue, nil
	}
	return c.inner.Unpack(r, pkt)
}

// ForwardMatchField decodes through its inner field and rewinds, so the
// same bytes are read again by later fields. It packs nothing.
type ForwardMatchField struct {
	inner Field
}

func ForwardMatch(inner Field) *ForwardMatchField {
	return &ForwardMatchField{inner: inner}
}

func (f *ForwardMatchField) Name() string { return f.inner.Name() }

func (f *ForwardMatchField) Default() any { return f.inner.Default() }

// Length is the peeked span; none of it is charged to the budget.
func (f *ForwardMatchField) Length() (int, error) { return f.inner.Length() }

func (f *ForwardMatchField) Materialize(pkt *protocol.Packet) (Field, error) {
	inner, err := f.inner.Materialize(pkt)
	if err != nil {
		return nil, err
	}
	return &ForwardMatchField{inner: inner}, nil
}

func (f *ForwardMatchField) Pack(any, *protocol.Packet) ([]byte, error) {
	return []byte{}, nil
}

func (f *ForwardMatchField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	start := r.Offset()
	v, err := f.inner.Unpack(r, pkt)
	if err != nil {
		return nil, err
	}
	if err := r.Rewind(int(r.Offset() - start)); err != nil {
		return nil, err
	}
	return v, nil
}

// Selector picks the concrete field of a switch. It may write normalized
// values back into pkt.
type Selector func(pkt *protocol.Packet) (Field, error)

// SwitchField delegates to the field its selector returns for the pass.
// The delegate is known under the switch's name.
type SwitchField struct {
	name  string
	sel   Selector
	field Field
}

func Switch(name string, sel Selector) *SwitchField {
	return &SwitchField{name: name, sel: sel}
}

func (f *SwitchField) Name() string { return f.name }

func (f *SwitchField) Default() any {
	if f.field == nil {
		return protocol.NoValue
	}
	return f.field.Default()
}

func (f *SwitchField) Length() (int, error) {
	if f.field == nil {
		return 0, &protocol.UnsupportedCall{Field: f.name, Op: "static length"}
	}
	return f.field.Length()
}

func (f *SwitchField) Materialize(pkt *protocol.Packet) (Field, error) {
	sel, err := f.sel(pkt)
	if err != nil {
		return nil, err
	}
	if sel == nil {
		return nil, protocol.FieldValuef(f.name, "selector returned no field")
	}
	mat, err := sel.Materialize(pkt)
	if err != nil {
		return nil, err
	}
	return &SwitchField{name: f.name, sel: f.sel, field: mat}, nil
}

func (f *SwitchField) resolved(pkt *protocol.Packet) (Field, error) {
	if f.field != nil {
		return f.field, nil
	}
	m, err := f.Materialize(pkt)
	if err != nil {
		return nil, err
	}
	return m.(*SwitchField).field, nil
}

func (f *SwitchField) Pack(v any, pkt *protocol.Packet) ([]byte, error) {
	field, err := f.resolved(pkt)
	if err != nil {
		return nil, err
	}
	return field.Pack(v, pkt)
}

func (f *SwitchField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	field, err := f.resolved(pkt)
	if err != nil {
		return nil, err
	}
	return field.Unpack(r, pkt)
}

// Packer is anything that serializes itself, such as a decoded payload.
type Packer interface {
	Bytes() ([]byte, error)
}

// Layer is a decoded payload backed by a record of its own.
type Layer interface {
	Packer
	Record() *Record
}

// Decoder turns the payload bytes of a structure into the next layer.
type Decoder func(r *protocol.Reader, length int) (Packer, error)

// NextFunc resolves the next-layer decoder from the parse context. A nil
// decoder keeps the payload as raw bytes.
type NextFunc func(pkt *protocol.Packet) (Decoder, error)

// PayloadField hands the rest of a structure to an external decoder.
type PayloadField struct {
	config
	decoder Decoder
}

func Payload(name string, opts ...FieldOption) *PayloadField {
	return &PayloadField{config: newConfig(name, -1, opts)}
}

func (f *PayloadField) Length() (int, error) {
	if f.length < 0 {
		return 0, &protocol.UnsupportedCall{Field: f.name, Op: "static length of a payload"}
	}
	return f.length, nil
}

func (f *PayloadField) Materialize(pkt *protocol.Packet) (Field, error) {
	c, err := f.config.resolve(pkt)
	if err != nil {
		return nil, err
	}
	out := *f
	out.config = c
	if c.next != nil {
		dec, err := c.next(pkt)
		if err != nil {
			return nil, err
		}
		out.decoder = dec
	}
	return &out, nil
}

func (f *PayloadField) Pack(v any, _ *protocol.Packet) ([]byte, error) {
	if protocol.IsNoValue(v) {
		return []byte{}, nil
	}
	switch t := v.(type) {
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out, nil
	case Packer:
		return t.Bytes()
	default:
		return nil, protocol.FieldValuef(f.name, "unsupported payload type %T", v)
	}
}

func (f *PayloadField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	b, err := f.read(r, f.budget(pkt))
	if err != nil {
		return nil, err
	}
	if f.decoder == nil || len(b) == 0 {
		return b, nil
	}
	next, err := f.decoder(protocol.NewReader(b), len(b))
	if err != nil {
		return nil, fmt.Errorf("%s: next layer: %w", f.name, err)
	}
	return next, nil
}
