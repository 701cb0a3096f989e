package schema

import (
	"github.com/danmuck/wirekit/internal/protocol"
)

// NestedField embeds a schema. With a length, exactly that many bytes
// belong to the nested record; otherwise it reads against the remaining
// budget of the enclosing pass.
type NestedField struct {
	config
	schema *Schema
}

func Nested(name string, s *Schema, opts ...FieldOption) *NestedField {
	return &NestedField{config: newConfig(name, -1, opts), schema: s}
}

func (f *NestedField) Schema() *Schema { return f.schema }

func (f *NestedField) Length() (int, error) {
	if f.length >= 0 {
		return f.length, nil
	}
	if f.lenFunc != nil {
		return 0, &protocol.UnsupportedCall{Field: f.name, Op: "static length"}
	}
	return f.schema.StaticLength()
}

func (f *NestedField) Materialize(pkt *protocol.Packet) (Field, error) {
	c, err := f.config.resolve(pkt)
	if err != nil {
		return nil, err
	}
	out := *f
	out.config = c
	return &out, nil
}

func (f *NestedField) Pack(v any, pkt *protocol.Packet) ([]byte, error) {
	v, err := f.value(v)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case *Record:
		return t.Pack(pkt)
	case Values:
		rec, err := f.schema.BuildIn(t, pkt)
		if err != nil {
			return nil, err
		}
		return rec.Bytes()
	case []byte:
		return fit(f.name, t, f.length)
	default:
		return nil, protocol.FieldValuef(f.name, "not a %s record: %T", f.schema.Name(), v)
	}
}

func (f *NestedField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	if f.length < 0 {
		return f.schema.unpack(r, pkt.Remaining, pkt)
	}
	b, err := f.read(r, f.length)
	if err != nil {
		return nil, err
	}
	sub := protocol.NewReader(b)
	rec, err := f.schema.unpack(sub, len(b), pkt)
	if err != nil {
		return nil, err
	}
	if left := sub.Remaining(); left > 0 {
		return nil, protocol.FieldValuef(f.name, "%d trailing bytes after %s", left, f.schema.Name())
	}
	return rec, nil
}

// ListField reads items until its budget is used up. Without an item
// field the whole span is kept as raw bytes.
type ListField struct {
	config
	item Field
}

func List(name string, item Field, opts ...FieldOption) *ListField {
	return &ListField{config: newConfig(name, -1, opts), item: item}
}

func (f *ListField) Materialize(pkt *protocol.Packet) (Field, error) {
	c, err := f.config.resolve(pkt)
	if err != nil {
		return nil, err
	}
	out := *f
	out.config = c
	return &out, nil
}

func (f *ListField) Pack(v any, pkt *protocol.Packet) ([]byte, error) {
	v, err := f.value(v)
	if err != nil {
		return nil, err
	}
	var items []any
	switch t := v.(type) {
	case []byte:
		return fit(f.name, t, -1)
	case []any:
		items = t
	case []*Record:
		for _, rec := range t {
			items = append(items, rec)
		}
	default:
		return nil, protocol.FieldValuef(f.name, "not a list: %T", v)
	}

	out := make([]byte, 0)
	for i, it := range items {
		if f.item == nil {
			b, ok := it.([]byte)
			if !ok {
				return nil, protocol.FieldValuef(f.name, "item %d is %T, want bytes", i, it)
			}
			out = append(out, b...)
			continue
		}
		mat, err := f.item.Materialize(pkt)
		if err != nil {
			return nil, err
		}
		b, err := mat.Pack(it, pkt)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func (f *ListField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	n := f.budget(pkt)
	if f.item == nil || n < 0 {
		b, err := f.read(r, n)
		if err != nil || f.item == nil {
			return b, err
		}
		return f.unpackItems(protocol.NewReader(b), len(b), pkt)
	}
	return f.unpackItems(r, n, pkt)
}

func (f *ListField) unpackItems(r *protocol.Reader, n int, pkt *protocol.Packet) (any, error) {
	items := make([]any, 0)
	for used := 0; used < n; {
		left := n - used
		ipkt := pkt.Clone()
		ipkt.Remaining = left

		mat, err := f.item.Materialize(ipkt)
		if err != nil {
			return nil, err
		}
		if l, err := mat.Length(); err == nil && l > left {
			return nil, protocol.FieldValuef(f.name, "item %d length %d overruns remaining budget %d", len(items), l, left)
		}
		start := r.Offset()
		v, err := mat.Unpack(r, ipkt)
		if err != nil {
			return nil, err
		}
		got := int(r.Offset() - start)
		if got == 0 {
			return nil, protocol.FieldValuef(f.name, "item %d consumed no bytes", len(items))
		}
		if got > left {
			return nil, protocol.FieldValuef(f.name, "item %d length %d overruns remaining budget %d", len(items), got, left)
		}
		used += got
		items = append(items, v)
	}
	return items, nil
}

// OptionField is a type-length-value list. Each item is first read with
// the base schema to learn its code, then re-read from the same offset
// with the schema the registry maps the code to.
type OptionField struct {
	config
	code string
	reg  *Registry
}

// Options declares an option list whose items carry their code in the
// base field named code.
func Options(name string, reg *Registry, code string, opts ...FieldOption) *OptionField {
	return &OptionField{config: newConfig(name, -1, opts), code: code, reg: reg}
}

func (f *OptionField) Registry() *Registry { return f.reg }

func (f *OptionField) Materialize(pkt *protocol.Packet) (Field, error) {
	c, err := f.config.resolve(pkt)
	if err != nil {
		return nil, err
	}
	out := *f
	out.config = c
	return &out, nil
}

func (f *OptionField) Pack(v any, pkt *protocol.Packet) ([]byte, error) {
	if protocol.IsNoValue(v) && protocol.IsNoValue(f.def) {
		v = NewMultiMap()
	}
	v, err := f.value(v)
	if err != nil {
		return nil, err
	}
	var recs []*Record
	switch t := v.(type) {
	case *MultiMap:
		for _, e := range t.entries {
			recs = append(recs, e.Value)
		}
	case []*Record:
		recs = t
	default:
		return nil, protocol.FieldValuef(f.name, "not an option list: %T", v)
	}

	out := make([]byte, 0)
	for _, rec := range recs {
		b, err := rec.Pack(pkt)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	if f.length >= 0 {
		if len(out) > f.length {
			return nil, protocol.FieldValuef(f.name, "%d option bytes exceed budget %d", len(out), f.length)
		}
		pkt.OptionPadding = f.length - len(out)
	}
	return out, nil
}

func (f *OptionField) Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error) {
	n := f.budget(pkt)
	if n < 0 {
		return nil, &protocol.UnsupportedCall{Field: f.name, Op: "unbounded option list"}
	}
	items := NewMultiMap()
	used := 0
	for used < n {
		left := n - used
		start := r.Offset()

		head, err := f.reg.Base().unpack(r, left, pkt)
		if err != nil {
			return nil, err
		}
		code := head.Value(f.code)
		key, ok := protocol.ToInt64(code)
		if !ok {
			return nil, protocol.FieldValuef(f.name, "option code %v is not numeric", code)
		}
		concrete, err := f.reg.Lookup(key)
		if err != nil {
			return nil, err
		}
		if err := r.Rewind(int(r.Offset() - start)); err != nil {
			return nil, err
		}

		rec, err := concrete.unpack(r, left, pkt)
		if err != nil {
			return nil, err
		}
		got := int(r.Offset() - start)
		if got == 0 {
			return nil, protocol.FieldValuef(f.name, "option %d consumed no bytes", key)
		}
		used += got
		items.Add(code, key, rec)

		if f.eool != nil && key == *f.eool {
			break
		}
	}
	pkt.OptionPadding = n - used
	return items, nil
}
