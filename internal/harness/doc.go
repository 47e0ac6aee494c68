// Package harness runs YAML governance scenarios against a fresh ledger.
//
// A scenario deploys a manifest, runs steps as transactions and checks
// assertions against the final state and the trace of step transactions.
//
// # Scenario Format
//
//	name: metadata_permission
//	description: "SET_METADATA can be granted, used, revoked and frozen"
//	deployment:
//	  daos:
//	    - {name: treasury, owner: alice}
//	steps:
//	  - {op: grant, from: alice, dao: treasury, where: treasury, who: carol, permission: SET_METADATA_PERMISSION}
//	  - {op: set_metadata, from: carol, dao: treasury, metadata: "ipfs://v2"}
//	  - {op: grant, from: alice, dao: treasury, where: treasury, who: carol, permission: SET_METADATA_PERMISSION, expect_error: ALREADY_GRANTED}
//	assertions:
//	  - {type: granted, dao: treasury, where: treasury, who: carol, permission: SET_METADATA_PERMISSION}
//	  - {type: event_count, event: MetadataSet, count: 1}
//
// Every account is referred to by name. Names bound by the deployment
// (DAOs, repos, installed plugins, conditions) resolve to their contracts;
// any other name is an external account.
//
// # Steps
//
// A step is one transaction sent by from. A step without expect_error must
// commit; a step with expect_error must revert with that error code.
// Installation, update and uninstallation are split into prepare and apply
// steps; a prepare step stores its result under as (or plugin) and the
// matching apply step names it.
//
// # Deterministic Traces
//
// Scenarios run on testutil ledgers: transaction ids and block numbers are
// reproducible and every bound address is rendered as its name, so the trace
// of a scenario is byte-identical across runs and can be compared against a
// golden file with RunWithGolden.
package harness
