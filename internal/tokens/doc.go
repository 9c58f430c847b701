// Package tokens issues the opaque recovery and remember tokens used by the Engine.
//
// Tokens are 256-bit values from [internal.NewToken]. Only their SHA-256 hash reaches
// the store. An Issuer runs in [Single] mode (recovery: issuing replaces the owner's
// previous token) or [Multi] mode (remember: one token per device).
//
// Expiry is evaluated on access against the issuer clock. An expired token is deleted
// by the access that observed it and reported as [ErrExpired].
package tokens
