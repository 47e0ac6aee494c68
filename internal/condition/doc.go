// Package condition provides permission condition evaluators.
//
// A condition is attached to a permission entry at grant time and decides at
// check time whether the grant applies. Conditions are selected by the address
// they are deployed at. Deploy places an evaluator on a ledger; the
// evaluators are:
//
//   - Func adapts a Go function.
//   - Lua runs a sandboxed script exposing a global check function.
//   - AllOf, AnyOf and Not combine other conditions.
//
// Evaluators must not mutate shared state. The permission manager treats a
// panicking evaluator as a denial.
package condition
