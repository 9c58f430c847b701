// Package authcore is a user authentication core: password hashing policy, login
// attempt lockout, one-time recovery codes, remember-me tokens, account activation and
// group-based authorization over a narrow [CredentialStore] interface.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build]. The
// engine holds no per-user state: users, groups and memberships live in the
// CredentialStore, while sessions, tokens and attempt counters live in Redis (or in the
// SQL store's attempt tracker).
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], the entity
// types and the error sentinels. Hashing lives in password/, sessions in session/, and
// token, throttle and audit plumbing under internal/. A relational CredentialStore is
// provided by store/sqlstore and HTTP guards by middleware/.
//
// # What this package must NOT do
//
//   - Return driver, Redis or notifier error text; every failure maps to one sentinel.
//   - Log passwords, recovery codes, remember tokens or session handles.
//   - Reveal whether an identity exists through Login, or how long a lockout lasts.
//   - Import store/sqlstore (it imports authcore).
package authcore
