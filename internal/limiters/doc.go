// Package limiters holds the login lockout policy and the Redis-backed limiters built
// on top of it and on internal/rate.
//
// # Limiters
//
//   - [Policy]: pure lockout decision from count, last failure and window.
//   - [AttemptTracker]: Redis hash per key, atomic increment, sliding expiry.
//   - [RecoveryLimiter]: per-identity + per-IP throttle for forgotten-password requests.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package except internal/rate.
//   - Refuse a login on its own. The Engine asks and decides.
package limiters
