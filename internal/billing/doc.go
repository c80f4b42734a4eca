// Package billing records assembly charges in an idempotent ledger.
//
// Every charge is keyed by a correlation id derived from the episode, so a
// retried finalisation finds the existing entry instead of charging twice.
// Charges and refunds run in their own transactions; an unrelated database
// error rolls the transaction back and is returned to the caller, which
// decides whether the failure matters.
package billing
