// Package internal contains helpers that are private to authcore, chiefly secure
// random generation of tokens, activation codes and generated passwords.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: lockout policy and the Redis attempt tracker
//   - rate: Redis fixed-window and in-process token-bucket limiters
//   - stores: Redis token records with exactly-once consume
//   - tokens: recovery and remember token issuer
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
