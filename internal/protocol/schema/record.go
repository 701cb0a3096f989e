package schema

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/danmuck/wirekit/internal/protocol"
)

// Record is one instance of a schema: the ordered key/value side of a
// decoded or built structure. Typed access to well-known fields lives in
// the protocol packages; a record never exposes field names as methods, so
// no declared name can shadow an operation.
type Record struct {
	schema   *Schema
	values   []any
	cache    [][]byte
	dirty    bool
	warnings []error
	// parent is the context the record was decoded or built in. Repacks
	// after Set reuse it.
	parent *protocol.Packet
}

func (r *Record) Schema() *Schema { return r.schema }

func (r *Record) Name() string { return r.schema.name }

func (r *Record) Len() int { return len(r.values) }

func (r *Record) Has(name string) bool {
	_, ok := r.schema.index[name]
	return ok
}

func (r *Record) Get(name string) (any, bool) {
	i, ok := r.schema.index[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Value returns the field value, NoValue when undeclared.
func (r *Record) Value(name string) any {
	v, ok := r.Get(name)
	if !ok {
		return protocol.NoValue
	}
	return v
}

// Int returns the numeric form of a field, 0 when absent.
func (r *Record) Int(name string) int64 {
	n, _ := protocol.ToInt64(r.Value(name))
	return n
}

// Set assigns a declared field and drops the byte cache. An undeclared
// name is ignored and reported as *protocol.UnknownFieldWarning.
func (r *Record) Set(name string, v any) error {
	i, ok := r.schema.index[name]
	if !ok {
		return &protocol.UnknownFieldWarning{Schema: r.schema.name, Field: name}
	}
	r.values[i] = v
	r.dirty = true
	return nil
}

func (r *Record) Keys() []string { return r.schema.FieldNames() }

// Range visits fields in declaration order until fn returns false.
func (r *Record) Range(fn func(name string, v any) bool) {
	for i, f := range r.schema.fields {
		if !fn(f.Name(), r.values[i]) {
			return
		}
	}
}

// Warnings returns the non-fatal issues recorded while building.
func (r *Record) Warnings() []error {
	out := make([]error, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Pack serializes the record. Every field is materialized against the
// current values, so lengths and selectors see the whole record. A field
// with no value and no default packs as zeros when its width is known.
// A nil parent reuses the context the record was decoded or built in.
func (r *Record) Pack(parent *protocol.Packet) ([]byte, error) {
	if parent == nil {
		parent = r.parent
	} else {
		r.parent = parent
	}
	pkt := protocol.NewPacket(parent)
	for i, f := range r.schema.fields {
		pkt.Set(f.Name(), r.values[i])
	}

	out := make([]byte, 0)
	for i, f := range r.schema.fields {
		mat, err := f.Materialize(pkt)
		if err != nil {
			return nil, r.schema.wrap(f, err)
		}
		b, err := mat.Pack(r.values[i], pkt)
		if errors.Is(err, protocol.ErrNoDefaultValue) {
			if n, lerr := mat.Length(); lerr == nil {
				b, err = make([]byte, n), nil
			}
		}
		if err != nil {
			return nil, r.schema.wrap(f, err)
		}
		r.cache[i] = b
		out = append(out, b...)
	}
	r.dirty = false
	return out, nil
}

// Bytes returns the wire form, packing only if a field changed.
func (r *Record) Bytes() ([]byte, error) {
	if r.dirty {
		return r.Pack(r.parent)
	}
	out := make([]byte, 0)
	for _, b := range r.cache {
		out = append(out, b...)
	}
	return out, nil
}

// Buffer returns the cached bytes of one field.
func (r *Record) Buffer(name string) ([]byte, error) {
	i, ok := r.schema.index[name]
	if !ok {
		return nil, &protocol.UnknownFieldWarning{Schema: r.schema.name, Field: name}
	}
	if r.dirty {
		if _, err := r.Pack(r.parent); err != nil {
			return nil, err
		}
	}
	out := make([]byte, len(r.cache[i]))
	copy(out, r.cache[i])
	return out, nil
}

// Payload returns the raw bytes of the payload field, if declared.
func (r *Record) Payload() ([]byte, error) {
	if r.schema.payload < 0 {
		return nil, &protocol.UnsupportedCall{Field: r.schema.name, Op: "payload of a schema without one"}
	}
	return r.Buffer(r.schema.fields[r.schema.payload].Name())
}

func (r *Record) String() string {
	var buf bytes.Buffer
	buf.WriteString(r.schema.name)
	buf.WriteByte('(')
	r.Range(func(name string, v any) bool {
		if buf.Len() > len(r.schema.name)+1 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s=%v", name, v)
		return true
	})
	buf.WriteByte(')')
	return buf.String()
}

// MarshalJSON writes fields in declaration order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var err error
	r.Range(func(name string, v any) bool {
		var key, val []byte
		if key, err = json.Marshal(name); err != nil {
			return false
		}
		if val, err = json.Marshal(v); err != nil {
			err = fmt.Errorf("%s.%s: %w", r.schema.name, name, err)
			return false
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		return true
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ToMap flattens the record into plain Go values for encoders that do not
// keep key order.
func (r *Record) ToMap() map[string]any {
	out := make(map[string]any, len(r.values))
	r.Range(func(name string, v any) bool {
		out[name] = Plain(v)
		return true
	})
	return out
}
