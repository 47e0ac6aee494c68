// Package ir provides the foundational value types shared by every govkit
// package: account addresses, 32-byte hashes, permission identifiers,
// version tags, actions and emitted events.
//
// This package imports nothing internal. All other internal packages import
// ir, which keeps the dependency graph acyclic.
//
// Key design constraints:
//   - Content-addressed identifiers (setup ids, installation ids, tag hashes)
//     are keccak-256 over a fixed, order-sensitive word encoding (see encode.go)
//   - Journal records are canonical JSON hashed with SHA-256 and a domain prefix
//   - Logical clocks (block numbers) only, never wall-clock timestamps
//   - The wildcard address Any is a sentinel, never a real account
package ir
