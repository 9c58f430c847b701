// Package password implements password digests under three schemes.
//
// # Schemes
//
//   - bcrypt: adaptive, cost bounded to [MinCost, MaxCost], optionally random per call.
//   - argon2id: PHC strings, $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>,
//     where the scheme cost is the time parameter.
//   - legacy: salted SHA-1 kept for existing records. The salt is either stored beside
//     the digest or embedded as its prefix.
//
// [Hasher.NeedsRehash] reports digests made by another scheme or below the minimum
// cost so the caller can re-hash on the next successful login. [Hasher.Dummy] spends
// the same work as a real verification for unknown identities.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length) is
// enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive digests.
//   - Import any other authcore package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
