package schema

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/danmuck/wirekit/internal/protocol"
)

// Field is a declared codec. A schema holds one prototype per field and
// calls Materialize once per pass to resolve lengths, byte order and
// delegates against the parse context built so far.
type Field interface {
	Name() string
	// Default is the value used when none is set, protocol.NoValue if none.
	Default() any
	// Length is the static byte length. It fails with UnsupportedCall when
	// the length depends on data.
	Length() (int, error)
	Materialize(pkt *protocol.Packet) (Field, error)
	Pack(v any, pkt *protocol.Packet) ([]byte, error)
	Unpack(r *protocol.Reader, pkt *protocol.Packet) (any, error)
}

// LengthFunc computes a byte length from earlier fields of the pass.
type LengthFunc func(pkt *protocol.Packet) (int, error)

// ByteOrderFunc picks a byte order from earlier fields of the pass.
type ByteOrderFunc func(pkt *protocol.Packet) (binary.ByteOrder, error)

type config struct {
	name    string
	def     any
	length  int
	lenFunc LengthFunc
	order   binary.ByteOrder
	orderFn ByteOrderFunc
	bits    int
	charset string
	unquote bool
	next    NextFunc
	eool    *int64
}

func newConfig(name string, length int, opts []FieldOption) config {
	c := config{
		name:   name,
		def:    protocol.NoValue,
		length: length,
		order:  binary.BigEndian,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

type FieldOption func(*config)

func Default(v any) FieldOption {
	return func(c *config) { c.def = v }
}

// Len fixes the byte length.
func Len(n int) FieldOption {
	return func(c *config) {
		c.length = n
		c.lenFunc = nil
	}
}

// LenFunc defers the byte length to the parse context.
func LenFunc(fn LengthFunc) FieldOption {
	return func(c *config) {
		c.length = -1
		c.lenFunc = fn
	}
}

func Order(order binary.ByteOrder) FieldOption {
	return func(c *config) {
		c.order = order
		c.orderFn = nil
	}
}

// OrderFunc defers the byte order to the parse context.
func OrderFunc(fn ByteOrderFunc) FieldOption {
	return func(c *config) { c.orderFn = fn }
}

// BitWidth restricts an integer to its low n bits.
func BitWidth(n int) FieldOption {
	return func(c *config) { c.bits = n }
}

// Charset selects a text encoding by its WHATWG/IANA label.
func Charset(label string) FieldOption {
	return func(c *config) { c.charset = label }
}

// Unquote makes a text field URL-unquote on read and quote on write.
func Unquote() FieldOption {
	return func(c *config) { c.unquote = true }
}

// Next sets the decoder resolver of a payload field.
func Next(fn NextFunc) FieldOption {
	return func(c *config) { c.next = fn }
}

// EndOfList stops an option list after the item with this code.
func EndOfList(code int64) FieldOption {
	return func(c *config) { c.eool = &code }
}

func (c *config) Name() string { return c.name }

func (c *config) Default() any { return c.def }

func (c *config) Length() (int, error) {
	if c.length < 0 {
		return 0, &protocol.UnsupportedCall{Field: c.name, Op: "static length"}
	}
	return c.length, nil
}

// resolve returns a copy with context-dependent settings fixed.
func (c config) resolve(pkt *protocol.Packet) (config, error) {
	if c.lenFunc != nil {
		n, err := c.lenFunc(pkt)
		if err != nil {
			return c, err
		}
		if n < 0 {
			return c, protocol.FieldValuef(c.name, "negative length %d", n)
		}
		c.length = n
		c.lenFunc = nil
	}
	if c.orderFn != nil {
		order, err := c.orderFn(pkt)
		if err != nil {
			return c, err
		}
		c.order = order
		c.orderFn = nil
	}
	return c, nil
}

// value substitutes the default for an absent v.
func (c *config) value(v any) (any, error) {
	if !protocol.IsNoValue(v) {
		return v, nil
	}
	if protocol.IsNoValue(c.def) {
		return nil, &protocol.NoDefaultValue{Field: c.name}
	}
	return c.def, nil
}

// budget is the byte count a variable-length field reads.
func (c *config) budget(pkt *protocol.Packet) int {
	if c.length >= 0 {
		return c.length
	}
	if pkt != nil && pkt.Remaining >= 0 {
		return pkt.Remaining
	}
	return -1
}

func (c *config) read(r *protocol.Reader, n int) ([]byte, error) {
	b, err := r.Read(n)
	if err != nil {
		return nil, &protocol.FieldValueError{Field: c.name, Reason: "short read", Err: err}
	}
	return b, nil
}

func isLittle(order binary.ByteOrder) bool {
	return order == binary.LittleEndian
}

// IsEOF reports whether err means the byte source was already exhausted.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
