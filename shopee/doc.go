// Package shopee is the upstream marketplace client.
//
// Every request is authenticated through the query string (partner_id,
// timestamp, sign and, for session calls, access_token and shop_id). Every
// response is checked for the {error, message} envelope before the response
// body is read. Upstream failures are classified into the core error
// taxonomy so callers can tell AUTH_REJECTED from RATE_LIMITED from a
// transient UPSTREAM_UNAVAILABLE.
package shopee
