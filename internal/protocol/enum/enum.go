// Package enum implements open code/label namespaces.
//
// A Namespace is seeded with the assigned codes of a registry and grows
// on first sight of an unseen code or label. The grown members are
// interned: the same code resolves to the same *Member until Reset.
package enum

import (
	"fmt"
	"sort"
	"sync"
)

// Member is one code of a namespace. Known is false for members that were
// synthesized at lookup time.
type Member struct {
	Value int64
	Name  string
	Known bool
	ns    string
}

func (m *Member) Int() int64 { return m.Value }

func (m *Member) String() string { return m.Name }

// Namespace returns the owning namespace's name.
func (m *Member) Namespace() string { return m.ns }

func (m *Member) MarshalText() ([]byte, error) {
	return []byte(m.Name), nil
}

// MissingFunc labels a code that is not part of the seed.
type MissingFunc func(code int64) string

// Unassigned is the default MissingFunc.
func Unassigned(code int64) string {
	return fmt.Sprintf("Unassigned_%d", code)
}

type Namespace struct {
	name    string
	missing MissingFunc

	mu     sync.RWMutex
	seed   map[int64]*Member
	byCode map[int64]*Member
	byName map[string]*Member
}

type Option func(*Namespace)

// WithMissing replaces the label synthesized for unseen codes.
func WithMissing(fn MissingFunc) Option {
	return func(ns *Namespace) { ns.missing = fn }
}

// New seeds a namespace. When two codes share a label the lower code owns
// the label lookup.
func New(name string, seed map[int64]string, opts ...Option) *Namespace {
	ns := &Namespace{
		name:    name,
		missing: Unassigned,
		seed:    make(map[int64]*Member, len(seed)),
	}
	for _, opt := range opts {
		opt(ns)
	}
	for code, label := range seed {
		ns.seed[code] = &Member{Value: code, Name: label, Known: true, ns: name}
	}
	ns.reset()
	return ns
}

func (ns *Namespace) Name() string { return ns.name }

// Get returns the canonical member for code, interning a synthesized
// member on first sight.
func (ns *Namespace) Get(code int64) *Member {
	ns.mu.RLock()
	m, ok := ns.byCode[code]
	ns.mu.RUnlock()
	if ok {
		return m
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if m, ok := ns.byCode[code]; ok {
		return m
	}
	m = &Member{Value: code, Name: ns.missing(code), ns: ns.name}
	ns.byCode[code] = m
	if _, taken := ns.byName[m.Name]; !taken {
		ns.byName[m.Name] = m
	}
	return m
}

// Lookup resolves a label. An unseen label is interned with code.
func (ns *Namespace) Lookup(label string, code int64) *Member {
	ns.mu.RLock()
	m, ok := ns.byName[label]
	ns.mu.RUnlock()
	if ok {
		return m
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if m, ok := ns.byName[label]; ok {
		return m
	}
	m = &Member{Value: code, Name: label, ns: ns.name}
	ns.byName[label] = m
	if _, taken := ns.byCode[code]; !taken {
		ns.byCode[code] = m
	}
	return m
}

// Find resolves a label without extending the namespace.
func (ns *Namespace) Find(label string) (*Member, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	m, ok := ns.byName[label]
	return m, ok
}

// Known reports whether code is part of the seed.
func (ns *Namespace) Known(code int64) bool {
	_, ok := ns.seed[code]
	return ok
}

// Members lists every member seen so far in code order.
func (ns *Namespace) Members() []*Member {
	ns.mu.RLock()
	out := make([]*Member, 0, len(ns.byCode))
	for _, m := range ns.byCode {
		out = append(out, m)
	}
	ns.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// Reset drops every synthesized member and keeps the seed.
func (ns *Namespace) Reset() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.reset()
}

func (ns *Namespace) reset() {
	ns.byCode = make(map[int64]*Member, len(ns.seed))
	ns.byName = make(map[string]*Member, len(ns.seed))
	codes := make([]int64, 0, len(ns.seed))
	for code := range ns.seed {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	for _, code := range codes {
		m := ns.seed[code]
		ns.byCode[code] = m
		if _, taken := ns.byName[m.Name]; !taken {
			ns.byName[m.Name] = m
		}
	}
}
