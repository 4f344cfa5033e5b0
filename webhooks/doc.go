// Package webhooks receives marketplace push events.
//
// Every delivery is appended to the webhook log before anything else
// happens, then driven through:
// received -> unverified|duplicate|ignored|success|failed.
// The receiver always acknowledges the caller; failures are recorded on the
// log entry instead of being returned, so the upstream never enters a retry
// storm.
package webhooks
