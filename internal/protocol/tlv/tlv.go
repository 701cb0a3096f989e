package tlv

import (
	"fmt"

	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/schema"
)

// HeaderLen is the type plus length prefix of every item.
const HeaderLen = 4

// Header is the shared leading layout of an item: a 2-byte type and the
// 2-byte length of the body that follows.
var Header = schema.New("tlv",
	schema.Uint16("type"),
	schema.Uint16("length", schema.Default(0)),
)

// Unknown keeps the body of an unregistered item as raw bytes.
var Unknown = Body("tlv_unknown",
	schema.Bytes("data", schema.LenFunc(BodyLen), schema.Default([]byte{})),
)

// BodyLen is the body length announced by the item header.
func BodyLen(pkt *protocol.Packet) (int, error) {
	return int(pkt.Int("length")), nil
}

// Body declares a concrete item schema on top of Header. Decoded items
// must span exactly the announced length.
func Body(name string, fields ...schema.Field) *schema.Schema {
	return Header.Extend(name, fields...).With(schema.WithPostProcess(checkLength))
}

func checkLength(rec *schema.Record, _ *protocol.Packet) (*schema.Record, error) {
	b, err := rec.Bytes()
	if err != nil {
		return nil, err
	}
	if want := HeaderLen + int(rec.Int("length")); len(b) != want {
		return nil, &protocol.MalformedError{
			Schema: rec.Name(),
			Reason: fmt.Sprintf("item spans %d bytes, header announces %d", len(b), want),
		}
	}
	return rec, nil
}

// NewRegistry returns an item registry falling back to Unknown.
func NewRegistry(name string) *schema.Registry {
	return schema.NewRegistry(name, Header, Unknown)
}

// List declares a field holding consecutive items resolved via reg.
func List(name string, reg *schema.Registry, opts ...schema.FieldOption) *schema.OptionField {
	return schema.Options(name, reg, "type", opts...)
}

// Decode reads every item in payload.
func Decode(payload []byte, reg *schema.Registry) (*schema.MultiMap, error) {
	if len(payload) == 0 {
		return schema.NewMultiMap(), nil
	}
	list := schema.New("tlv_list", List("items", reg, schema.LenFunc(func(pkt *protocol.Packet) (int, error) {
		return pkt.Remaining, nil
	})))
	rec, err := list.UnpackBytes(payload)
	if err != nil {
		return nil, err
	}
	return rec.Value("items").(*schema.MultiMap), nil
}

// Encode concatenates the wire form of items.
func Encode(items []*schema.Record) ([]byte, error) {
	out := make([]byte, 0)
	for _, it := range items {
		b, err := it.Bytes()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}
