// Package queue pushes local changes to the marketplace through a pull-based
// work queue.
//
// Items move pending -> processing -> success, or back to retry with
// scheduled_at = now + retry_count * unit until max_retries is reached, at
// which point they end in failed. Processing is at-least-once; handlers must
// tolerate running twice.
package queue
