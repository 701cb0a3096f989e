package schema

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Entry is one decoded option item.
type Entry struct {
	Code  any
	Key   int64
	Value *Record
}

// MultiMap keeps option items in wire order and allows repeated codes.
type MultiMap struct {
	entries []Entry
}

func NewMultiMap() *MultiMap { return &MultiMap{} }

func (m *MultiMap) Add(code any, key int64, rec *Record) {
	m.entries = append(m.entries, Entry{Code: code, Key: key, Value: rec})
}

func (m *MultiMap) Len() int { return len(m.entries) }

func (m *MultiMap) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// GetAll returns every item with key, in wire order.
func (m *MultiMap) GetAll(key int64) []*Record {
	var out []*Record
	for _, e := range m.entries {
		if e.Key == key {
			out = append(out, e.Value)
		}
	}
	return out
}

func (m *MultiMap) Get(key int64) (*Record, bool) {
	for _, e := range m.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func (m *MultiMap) Has(key int64) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys lists distinct keys in first-seen order.
func (m *MultiMap) Keys() []int64 {
	seen := make(map[int64]bool, len(m.entries))
	var out []int64
	for _, e := range m.entries {
		if !seen[e.Key] {
			seen[e.Key] = true
			out = append(out, e.Key)
		}
	}
	return out
}

func (m *MultiMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range m.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		code, err := json.Marshal(e.Code)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`{"code":`)
		buf.Write(code)
		buf.WriteString(`,"value":`)
		buf.Write(value)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
