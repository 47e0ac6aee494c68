// Package processor installs, updates and uninstalls plugins on DAOs.
//
// Every lifecycle change is split in two steps. A prepare step resolves a
// version from a registered repo, asks its setup for the plugin and the
// permission changes, and records a prepared setup id: a hash over the
// version, the repo, the permission list, the helper list, the init data and
// the phase. An apply step, authorized by the DAO, presents the same inputs,
// and only succeeds if they hash to a pending prepared id. It then applies the
// permission changes through the DAO and records the applied setup id for
// the (dao, plugin) installation.
//
// A prepared id is pending while it was recorded at a later block than the
// installation's last apply. Applying any phase stamps the current block, so
// one apply invalidates every older preparation for that installation.
//
// Each public operation runs as its own ledger transaction (or joins the
// caller's), so a failure leaves no trace.
package processor
