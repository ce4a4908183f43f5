// Package domain holds the regulatory facts regcount works with (agencies,
// title references, titles, word counts) and the error taxonomy shared by
// the fetch, parse and aggregation layers.
//
// The package has no transport or storage dependencies; the eCFR client maps
// API payloads into these types.
package domain
