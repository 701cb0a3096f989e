package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/wirekit/internal/protocol"
)

// Registry maps discriminator codes to concrete schemas, with a default
// for unregistered codes. When a base schema is set every registered
// schema must start with the base fields, in order, so an item read with
// the base schema can be re-read from the same offset.
type Registry struct {
	name string
	base *Schema
	def  *Schema

	mu     sync.RWMutex
	byCode map[int64]*Schema
}

// NewRegistry panics when def does not start with the base layout; that is
// a declaration bug, not a runtime condition.
func NewRegistry(name string, base, def *Schema) *Registry {
	r := &Registry{name: name, base: base, def: def, byCode: make(map[int64]*Schema)}
	if def != nil {
		if err := r.compatible(def); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Name() string { return r.name }

func (r *Registry) Base() *Schema { return r.base }

func (r *Registry) Default() *Schema { return r.def }

func (r *Registry) compatible(s *Schema) error {
	if r.base == nil {
		return nil
	}
	want := r.base.FieldNames()
	got := s.FieldNames()
	if len(got) < len(want) {
		return fmt.Errorf("registry %s: %s has %d fields, base %s needs %d",
			r.name, s.name, len(got), r.base.name, len(want))
	}
	for i, name := range want {
		if got[i] != name {
			return fmt.Errorf("registry %s: %s field %d is %q, base %s has %q",
				r.name, s.name, i, got[i], r.base.name, name)
		}
	}
	return nil
}

// Register maps every code to s.
func (r *Registry) Register(s *Schema, codes ...int64) error {
	if err := r.compatible(s); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range codes {
		if prev, ok := r.byCode[code]; ok && prev != s {
			return fmt.Errorf("registry %s: code %d already maps to %s", r.name, code, prev.name)
		}
	}
	for _, code := range codes {
		r.byCode[code] = s
	}
	return nil
}

func (r *Registry) MustRegister(s *Schema, codes ...int64) *Registry {
	if err := r.Register(s, codes...); err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves code, falling back to the default schema.
func (r *Registry) Lookup(code int64) (*Schema, error) {
	r.mu.RLock()
	s, ok := r.byCode[code]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	if r.def != nil {
		return r.def, nil
	}
	return nil, protocol.FieldValuef(r.name, "no schema for code %d and no default", code)
}

func (r *Registry) Codes() []int64 {
	r.mu.RLock()
	out := make([]int64, 0, len(r.byCode))
	for code := range r.byCode {
		out = append(out, code)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
