package schema

import (
	"net/netip"

	"github.com/danmuck/wirekit/internal/protocol"
)

// AddressField is an IPv4 or IPv6 address decoded to netip.Addr.
type AddressField struct {
	config
	version int
}

func IPv4(name string, opts ...FieldOption) *AddressField {
	return &AddressField{config: newConfig(name, 4, opts), version: 4}
}

func IPv6(name string, opts ...FieldOption) *AddressField {
	return &AddressField{config: newConfig(name, 16, opts), version: 6}
}

func (f *AddressField) Materialize(*protocol.Packet) (Field, error) { return f, nil }

func (f *AddressField) Pack(v any, _ *protocol.Packet) ([]byte, error) {
	v, err := f.value(v)
	if err != nil {
		return nil, err
	}
	addr, err := toAddr(f.name, v)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(f.name, addr, f.version); err != nil {
		return nil, err
	}
	return addr.AsSlice(), nil
}

func (f *AddressField) Unpack(r *protocol.Reader, _ *protocol.Packet) (any, error) {
	b, err := f.read(r, f.length)
	if err != nil {
		return nil, err
	}
	addr, ok := netip.AddrFromSlice(b)
	if !ok {
		return nil, protocol.FieldValuef(f.name, "invalid address bytes")
	}
	if err := checkVersion(f.name, addr, f.version); err != nil {
		return nil, err
	}
	return addr, nil
}

// InterfaceField is an address plus netmask (IPv4, 8 bytes) or prefix
// length (IPv6, 17 bytes), decoded to netip.Prefix.
type InterfaceField struct {
	config
	version int
}

func IPv4Interface(name string, opts ...FieldOption) *InterfaceField {
	return &InterfaceField{config: newConfig(name, 8, opts), version: 4}
}

func IPv6Interface(name string, opts ...FieldOption) *InterfaceField {
	return &InterfaceField{config: newConfig(name, 17, opts), version: 6}
}

func (f *InterfaceField) Materialize(*protocol.Packet) (Field, error) { return f, nil }

func (f *InterfaceField) Pack(v any, _ *protocol.Packet) ([]byte, error) {
	v, err := f.value(v)
	if err != nil {
		return nil, err
	}
	var prefix netip.Prefix
	switch t := v.(type) {
	case netip.Prefix:
		prefix = t
	case string:
		prefix, err = netip.ParsePrefix(t)
		if err != nil {
			return nil, &protocol.FieldValueError{Field: f.name, Reason: "parse interface", Err: err}
		}
	default:
		return nil, protocol.FieldValuef(f.name, "not an interface: %T", v)
	}
	if err := checkVersion(f.name, prefix.Addr(), f.version); err != nil {
		return nil, err
	}
	out := prefix.Addr().AsSlice()
	if f.version == 4 {
		return append(out, netmask4(prefix.Bits())...), nil
	}
	return append(out, byte(prefix.Bits())), nil
}

func (f *InterfaceField) Unpack(r *protocol.Reader, _ *protocol.Packet) (any, error) {
	b, err := f.read(r, f.length)
	if err != nil {
		return nil, err
	}
	if f.version == 4 {
		addr := netip.AddrFrom4([4]byte(b[:4]))
		bits, ok := maskBits(b[4:8])
		if !ok {
			return nil, protocol.FieldValuef(f.name, "non-contiguous netmask % x", b[4:8])
		}
		return netip.PrefixFrom(addr, bits), nil
	}
	addr := netip.AddrFrom16([16]byte(b[:16]))
	if b[16] > 128 {
		return nil, protocol.FieldValuef(f.name, "prefix length %d exceeds 128", b[16])
	}
	return netip.PrefixFrom(addr, int(b[16])), nil
}

func toAddr(name string, v any) (netip.Addr, error) {
	switch t := v.(type) {
	case netip.Addr:
		return t, nil
	case string:
		addr, err := netip.ParseAddr(t)
		if err != nil {
			return netip.Addr{}, &protocol.FieldValueError{Field: name, Reason: "parse address", Err: err}
		}
		return addr, nil
	case []byte:
		addr, ok := netip.AddrFromSlice(t)
		if !ok {
			return netip.Addr{}, protocol.FieldValuef(name, "invalid address bytes")
		}
		return addr, nil
	default:
		return netip.Addr{}, protocol.FieldValuef(name, "not an address: %T", v)
	}
}

func checkVersion(name string, addr netip.Addr, version int) error {
	got := 6
	if addr.Is4() {
		got = 4
	}
	if got != version {
		return protocol.FieldValuef(name, "IP version mismatch: %d != %d", got, version)
	}
	return nil
}

func netmask4(bits int) []byte {
	m := uint32(0)
	if bits > 0 {
		m = ^uint32(0) << uint(32-bits)
	}
	return []byte{byte(m >> 24), byte(m >> 16), byte(m >> 8), byte(m)}
}

func maskBits(b []byte) (int, bool) {
	m := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	bits := 0
	for m&0x80000000 != 0 {
		bits++
		m <<= 1
	}
	return bits, m == 0
}
