// Package cache provides an in-process cache with TTL expiration.
//
// The repository uses it to reuse match counts between page requests for the
// same predicate. Entries are keyed by SHA256 digests of their inputs so keys
// stay short and deterministic regardless of predicate size.
package cache
