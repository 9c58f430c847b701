// Package middleware exposes HTTP adapters that resolve an authcore session handle and
// enforce group membership.
//
// # Guards
//
//   - [RequireSession] resolves the bearer handle to the current user.
//   - [RequireAnyGroup] and [RequireAllGroups] add a membership check.
//   - [RequireAdmin] checks the configured admin group.
//
// Each guard reads the Authorization header, calls [authcore.Engine.CurrentUser], and
// injects the user into the request context. [ClientIP] attaches the caller's address
// for throttling and audit.
//
// # What this package must NOT do
//
//   - Parse or sign session handles (delegates to the Engine).
//   - Access Redis or the credential store directly.
//   - Leak the reason a request was rejected to the client.
package middleware
