// Package sqlstore is the relational authcore.CredentialStore. It runs on SQLite
// (modernc.org/sqlite, no cgo) or PostgreSQL (pgx through database/sql) and ships its
// schema as embedded goose migrations.
//
// Multi-statement writes (user creation with memberships, user and group deletion,
// activation by code) run inside one transaction. A failure part way through rolls back
// and surfaces as authcore.ErrConsistencyViolation.
//
// # What this package must NOT do
//
//   - Return raw driver errors; every error maps to an authcore sentinel.
//   - Hash or compare passwords. It stores the digest it is given.
package sqlstore
