// Package session provides Redis-backed sessions referenced by signed handles.
//
// A handle is an HS256 JWT carrying only the session id, the user id and the expiry.
// The Redis record is authoritative: destroying it invalidates the handle even
// though the signature still verifies.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations), the [Session] model and the handle
// codec. It does NOT verify passwords or decide who may log in; those belong to the
// Engine.
//
// # What this package must NOT do
//
//   - Import authcore (no upward imports).
//   - Store passwords or raw tokens in [Session] fields.
package session
