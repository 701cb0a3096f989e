// Package protocol owns the shared parsing primitives of the wire engine.
//
// Ownership boundary:
// - byte source (Reader) with read-exactly, rewind and release
// - parse context (Packet) threaded through one schema pass
// - absent-value sentinel and numeric coercion
// - error taxonomy shared by schema, enum and protocol packages
package protocol
