// Package billing holds the invoice/payment ledger domain: the Invoice
// aggregate with its owned line items, append-only Payment and Refund
// records, and the external PaymentLog the reconciliation flow consumes.
//
// Lifecycle: PENDING -> FINALIZED -> PAID, with CANCELLED reachable only
// before any payment and REFUNDED only after a full refund. Line items are
// editable while PENDING and locked from FINALIZED onward. All money is
// decimal; derived totals are recomputed on every mutation and never stored
// independently of the line items that produce them.
package billing
