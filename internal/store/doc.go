// Package store provides the SQLite journal of committed and reverted
// ledger transactions.
//
// The journal is append-only:
//   - Transactions: one row per submission, committed or reverted
//   - Events: the events a committed transaction emitted, in order
//
// Ordering uses the ledger's logical sequence, never wall time, and every
// query orders by seq ASC then idx ASC, so two replays of one scenario read
// back identical results.
//
// Event fields are stored as RFC 8785 canonical JSON. Event ids are content
// addressed (see ir.EventID), so re-recording a transaction is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
