// Package rate provides the throttling primitives used by authcore.
//
// # Window semantics
//
// [Window] is a Redis fixed-window counter: INCR + EXPIRE on the first hit. Callers
// pick the key prefix, for example:
//   - arq:  recovery requests per identity
//   - arqi: recovery requests per IP
//
// [Local] is an in-process token bucket per key (golang.org/x/time/rate) for the
// login path, where a Redis round-trip per request is not wanted.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the authcore module.
package rate
