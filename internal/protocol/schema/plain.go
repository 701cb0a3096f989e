package schema

import (
	"encoding"

	"github.com/danmuck/wirekit/internal/protocol"
)

// Plain converts a decoded value into maps, slices and scalars. Absent
// values become nil and text-marshalable values become strings.
func Plain(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *Record:
		return t.ToMap()
	case Layer:
		return t.Record().ToMap()
	case *MultiMap:
		out := make([]any, 0, t.Len())
		for _, e := range t.entries {
			out = append(out, map[string]any{"code": Plain(e.Code), "value": Plain(e.Value)})
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, it := range t {
			out[i] = Plain(it)
		}
		return out
	case map[string]uint64, []byte, string, bool, int64, uint64:
		return t
	case encoding.TextMarshaler:
		b, err := t.MarshalText()
		if err != nil {
			return nil
		}
		return string(b)
	case Packer:
		b, err := t.Bytes()
		if err != nil {
			return nil
		}
		return b
	}
	if protocol.IsNoValue(v) {
		return nil
	}
	return v
}
