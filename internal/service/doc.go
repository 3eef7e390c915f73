// Package service implements the mutation engine beneath the ledger UI:
// snapshot/reconcile maintenance of derived aggregates, split invariant
// enforcement, transfer pairing, and the auto-rule engine with provenance.
//
// Every public operation follows the same cycle: capture a snapshot of the
// aggregate-relevant fields, mutate rows, reconcile the deltas, and commit
// everything in one SQLite transaction so a failed commit can never leave
// balances, category activity, or month caches out of step with the
// transaction set.
package service
