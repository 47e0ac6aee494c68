// Package dao implements the root account of an organization.
//
// A DAO holds native funds and a permission table (it embeds a
// permission.Manager whose own address is the DAO). It executes batches of
// actions for whoever holds EXECUTE_PERMISSION, records metadata, answers
// registered standard callbacks and delegates signature validation.
//
// All state changes are meant to run inside a ledger transaction so that a
// failing call reverts wholesale.
package dao
