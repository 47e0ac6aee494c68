// Package codec encodes call data and setup payloads as deterministic CBOR.
//
// Every call routed through the ledger carries a Calldata envelope: a method
// name plus CBOR-encoded arguments. The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2), so the same arguments always produce the same
// bytes and the keccak of a payload is stable. Addresses, hashes and
// permission ids travel as text strings through their MarshalText methods.
package codec
