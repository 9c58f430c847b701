// Package stores provides Redis-backed records for single-use and revocable tokens.
//
// # Design
//
// Each record is a versioned, binary-encoded value keyed by the token's hash, plus a
// per-owner index set. Consume uses WATCH/MULTI optimistic transactions with retry on
// contention so a token is handed out at most once. Expiry is checked on access and an
// expired record is deleted as a side effect; the Redis key TTL only bounds leftovers.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for token records. It does
// NOT generate tokens or decide what a token authorizes; those belong to
// internal/tokens and the Engine.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Store or log raw tokens.
package stores
