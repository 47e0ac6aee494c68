// Package ledger is the simulated chain every govkit component runs on.
//
// The ledger owns the account registry, native balances and a logical block
// clock. It serializes top-level calls (Submit) so that exactly one
// transaction runs at a time, and it makes each transaction atomic: before a
// transaction runs, every registered account that implements Snapshotter is
// snapshotted, and if the transaction fails all snapshots are restored and
// the events it emitted are dropped.
//
// Nested calls between accounts go through Call, which charges one step of
// the transaction's step budget. Exhausting the budget aborts the whole
// transaction with INSUFFICIENT_GAS.
//
// Thread-safety model:
//   - Submit: safe from any goroutine; transactions run one at a time.
//   - Call: must be invoked with the context passed to a Submit callback.
//     A Call made outside a transaction opens its own transaction.
//   - Read accessors (Balance, Block, Account): safe from any goroutine.
package ledger
