// Package outbox provides a transactional outbox with a claim-based consumer.
//
// Typical flow:
//  1. Within a business transaction, call Store.Insert with the transaction's handle so the
//     event commits or rolls back together with the business change.
//  2. Run a Relay (or call Consumer.RunOnce from a scheduler) in a separate process. It claims
//     rows with SELECT ... FOR UPDATE SKIP LOCKED, dispatches each one, and acknowledges it.
//  3. A dispatch failure increments fail_count, records last_error, and pushes available_at
//     forward by the retry backoff. The row is claimed again later.
//  4. CleanupMaintainer deletes acknowledged rows past retention in bounded batches.
//
// Delivery is at-least-once: dispatchers must tolerate duplicates and reordering, e.g. by
// deduplicating on event type, aggregate id and trace id.
package outbox
