// Package protocol owns the link packet set and its wire codec.
//
// Ownership boundary:
// - the closed Packet variant set and its enums
// - tag + TLV field encoding (tlv) and per-tag requirements (schema)
// - the encrypted frame envelope (frame) and negotiated channel (channel)
//
// A packet on the wire is a single tag byte followed by TLV fields. Tags this
// build does not know decode to Unknown so older peers keep working while the
// packet set grows.
package protocol
