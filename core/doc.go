// Package core contains the marketplace sync domain, its contracts, the error
// taxonomy, configuration and the token lifecycle (signature engine, token
// store contract, per-shop locks and the refresh coordinator). Upstream clients,
// storage and transports depend on this package; core must not depend on them.
package core
