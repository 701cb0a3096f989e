package protocol

import "math/big"

type noValue struct{}

func (noValue) String() string { return "<NA>" }

func (noValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// NoValue marks a field that carries no value: an absent conditional
// field, or a declared field with no default.
var NoValue any = noValue{}

// IsNoValue reports whether v is nil or the NoValue sentinel.
func IsNoValue(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(noValue)
	return ok
}

// Coder is implemented by enumeration members and anything else that
// stands for a numeric code.
type Coder interface {
	Int() int64
}

// ToInt64 extracts a numeric code from v.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case *big.Int:
		if n != nil && n.IsInt64() {
			return n.Int64(), true
		}
		return 0, false
	case Coder:
		return n.Int(), true
	default:
		return 0, false
	}
}

// ToBig converts any numeric value into a big.Int.
func ToBig(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Int).Set(n), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	}
	i, ok := ToInt64(v)
	if !ok {
		return nil, false
	}
	return big.NewInt(i), true
}
