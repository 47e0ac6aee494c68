// Package permission implements the capability-based Permission Manager.
//
// A permission entry maps (where, who, permissionId) to one of three values:
// unset, allow, or the address of a condition evaluator. A permission is
// granted iff the entry is not unset. The wildcard address ir.Any may appear
// on either side (never both) of a conditional entry.
//
// # Storage
//
// Direct entries live in the primary map. Wildcard entries live in two
// secondary maps, anyWho keyed by (where, id) and anyWhere keyed by (who, id),
// so the wildcard never shares key space with real accounts. Freeze flags
// are keyed by (where, id) and are permanent.
//
// # Authorization
//
// Every mutating call takes the calling account explicitly and requires it
// to hold ROOT_PERMISSION on the manager's own address. IsGranted is
// read-only and evaluates, in order:
//
//  1. the manager always holds ROOT on itself
//  2. the direct entry (allow, or its condition passes)
//  3. the anyWho entry for (where, id)
//  4. the anyWhere entry for (who, id)
//
// Any passing path authorizes.
//
// # Atomicity
//
// Every mutation, single or bulk, is staged against an overlay and validated
// item by item. Nothing is committed, and no event is emitted, unless every
// item passes.
//
// A Manager is not safe for concurrent use. The ledger serializes all calls.
package permission
