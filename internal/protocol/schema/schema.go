package schema

import (
	"fmt"
	"io"
	"sort"

	"github.com/danmuck/wirekit/internal/protocol"
)

// PreUnpackFunc prepares the parse context before the first field is read.
type PreUnpackFunc func(pkt *protocol.Packet) error

// PostProcessFunc validates or derives values once a record is decoded.
// It may return a different record, which then stands for the item.
type PostProcessFunc func(rec *Record, pkt *protocol.Packet) (*Record, error)

// Schema is an ordered, named set of fields. Schemas are declared once,
// usually as package variables, and are immutable afterwards.
type Schema struct {
	name      string
	fields    []Field
	index     map[string]int
	payload   int
	preUnpack PreUnpackFunc
	post      PostProcessFunc
}

func New(name string, fields ...Field) *Schema {
	s := &Schema{name: name, index: make(map[string]int, len(fields)), payload: -1}
	for _, f := range fields {
		s.put(f)
	}
	return s
}

func (s *Schema) put(f Field) {
	if i, ok := s.index[f.Name()]; ok {
		s.fields[i] = f
	} else {
		s.index[f.Name()] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	s.payload = -1
	for i, field := range s.fields {
		if _, ok := field.(*PayloadField); ok {
			s.payload = i
		}
	}
}

// Extend derives a schema: base fields first, new fields appended, and a
// field whose name is already declared replaces the base field in place.
// Hooks are inherited.
func (s *Schema) Extend(name string, fields ...Field) *Schema {
	out := &Schema{
		name:      name,
		fields:    make([]Field, len(s.fields)),
		index:     make(map[string]int, len(s.fields)+len(fields)),
		payload:   s.payload,
		preUnpack: s.preUnpack,
		post:      s.post,
	}
	copy(out.fields, s.fields)
	for k, v := range s.index {
		out.index[k] = v
	}
	for _, f := range fields {
		out.put(f)
	}
	return out
}

type SchemaOption func(*Schema)

func WithPreUnpack(fn PreUnpackFunc) SchemaOption {
	return func(s *Schema) { s.preUnpack = fn }
}

func WithPostProcess(fn PostProcessFunc) SchemaOption {
	return func(s *Schema) { s.post = fn }
}

// With installs hooks at declaration time and returns s.
func (s *Schema) With(opts ...SchemaOption) *Schema {
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

func (s *Schema) String() string { return s.name }

func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name()
	}
	return out
}

func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.fields[i], true
}

// StaticLength sums the static lengths of all fields.
func (s *Schema) StaticLength() (int, error) {
	total := 0
	for _, f := range s.fields {
		n, err := f.Length()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Values are named constructor arguments for Build.
type Values map[string]any

// Build creates a record from named values. Unset fields take their
// defaults; undeclared names are dropped and kept as warnings. The record
// is packed once so its byte cache is warm.
func (s *Schema) Build(vals Values) (*Record, error) {
	return s.BuildIn(vals, nil)
}

// BuildIn is Build for a record whose fields depend on an enclosing
// context, such as a byte order chosen by a file header.
func (s *Schema) BuildIn(vals Values, parent *protocol.Packet) (*Record, error) {
	rec := s.newRecord()
	rec.parent = parent
	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := rec.Set(name, vals[name]); err != nil {
			rec.warnings = append(rec.warnings, err)
		}
	}
	if _, err := rec.Pack(parent); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Schema) newRecord() *Record {
	rec := &Record{
		schema: s,
		values: make([]any, len(s.fields)),
		cache:  make([][]byte, len(s.fields)),
		dirty:  true,
	}
	for i, f := range s.fields {
		rec.values[i] = f.Default()
	}
	return rec
}

// Unpack decodes one record from r within a budget of length bytes. A
// negative length means "whatever r holds". A zero budget is io.EOF.
func (s *Schema) Unpack(r *protocol.Reader, length int, parent *protocol.Packet) (*Record, error) {
	return s.unpack(r, length, parent)
}

// UnpackBytes decodes one record from b.
func (s *Schema) UnpackBytes(b []byte) (*Record, error) {
	return s.unpack(protocol.NewReader(b), len(b), nil)
}

func (s *Schema) unpack(r *protocol.Reader, length int, parent *protocol.Packet) (*Record, error) {
	if length < 0 {
		length = r.Remaining()
	}
	if length == 0 {
		return nil, io.EOF
	}

	pkt := protocol.NewPacket(parent)
	pkt.Remaining = length
	if s.preUnpack != nil {
		if err := s.preUnpack(pkt); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	rec := s.newRecord()
	rec.parent = parent
	for i, f := range s.fields {
		mat, err := f.Materialize(pkt)
		if err != nil {
			return nil, s.wrap(f, err)
		}
		if n, err := mat.Length(); err == nil && pkt.Remaining >= 0 && n > pkt.Remaining {
			return nil, s.wrap(f, protocol.FieldValuef(f.Name(), "length %d overruns remaining budget %d", n, pkt.Remaining))
		}

		start := r.Offset()
		v, err := mat.Unpack(r, pkt)
		if err != nil {
			return nil, s.wrap(f, err)
		}
		raw, err := r.Since(start)
		if err != nil {
			return nil, s.wrap(f, err)
		}
		rec.values[i] = v
		rec.cache[i] = raw
		pkt.Set(f.Name(), v)

		if pkt.Remaining >= 0 {
			pkt.Remaining -= len(raw)
			if pkt.Remaining < 0 {
				return nil, s.wrap(f, protocol.FieldValuef(f.Name(), "overran budget by %d bytes", -pkt.Remaining))
			}
		}
	}
	rec.dirty = false

	if s.post != nil {
		out, err := s.post(rec, pkt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		if out != nil {
			if out.parent == nil {
				out.parent = parent
			}
			rec = out
		}
	}
	return rec, nil
}

func (s *Schema) wrap(f Field, err error) error {
	return fmt.Errorf("%s.%s: %w", s.name, f.Name(), err)
}
