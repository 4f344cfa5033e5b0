// Package reconcile maps upstream orders, products and returns onto local
// rows keyed by their external identifiers.
//
// Every entity is written inside its own unit of work together with its
// child rows. Children are matched by natural key and never deleted, so
// annotations added locally survive later syncs. Stock changes append an
// inventory log row only when the stored value actually moves.
package reconcile
