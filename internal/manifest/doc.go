// Package manifest compiles CUE deployment manifests and deploys them on a
// ledger.
//
// A manifest names every account it mentions. Contracts (DAOs, repos and
// installed plugins) get derived addresses; every other name is an external
// account at ir.LabelAddress(name). A 0x-prefixed name is used as is.
//
//	dao: treasury: {
//	    owner:    "alice"
//	    metadata: "ipfs://treasury"
//	}
//	repo: admin: {
//	    maintainer: "bob"
//	    builds: [{release: 1, setup: type: "admin", release_metadata: "admin plugin"}]
//	}
//	install: treasury_admin: {
//	    dao:     "treasury"
//	    repo:    "admin"
//	    version: "v1.1"
//	    admin:   "alice"
//	}
//	grant: [{dao: "treasury", where: "treasury", who: "carol", permission: "SET_METADATA_PERMISSION"}]
//	fund: treasury: 1000
//
// Deploy runs each step as its own ledger transaction, so a ledger with a
// store recorder journals the whole deployment.
package manifest
