// Package fetch drives list and detail calls against a paginated upstream.
//
// A walk iterates enumeration dimensions (order statuses, item statuses)
// serially. Within a dimension pages are followed by cursor until the
// upstream reports no more data or the page cap is reached. Detail lookups
// are split into bounded batches and fanned out with bounded concurrency. A
// failing page aborts only its own dimension; the result reports which
// dimensions failed so callers can surface PARTIAL_FETCH.
package fetch
