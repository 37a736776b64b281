// Package wsfe implements the AFIP WSFEv1 electronic invoicing workflow:
// querying the last authorized invoice number, requesting CAE authorization
// for invoice batches, and decoding the mixed per-batch and per-invoice
// outcomes the service returns.
//
// The service keeps one invoice-number sequence per (CUIT, point of sale,
// invoice type). AuthorizeBatch reads that sequence and assigns numbers
// locally before submitting, so concurrent batches against the same tuple
// would collide. The client serializes such batches within the process
// through an internal per-tuple lock; callers running multiple processes
// against the same tuple must serialize externally.
package wsfe
