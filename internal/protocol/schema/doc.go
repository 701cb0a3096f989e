// Package schema is the declarative pack/unpack engine.
//
// A Schema is an ordered list of Field codecs. Unpack walks the fields in
// declaration order against a shared protocol.Packet, charging each
// field's consumed bytes to the remaining budget; Pack walks the same
// order and caches each field's bytes on the Record. Composite fields
// (Conditional, ForwardMatch, Switch, Payload, Nested, List, Options)
// wrap other fields, and a Registry maps discriminator codes to schemas
// for type-length-value dispatch.
//
// The package never logs. Errors carry the schema and field path.
package schema
