// Package jwt issues and verifies the compact HMAC-signed credentials used for
// access and refresh, and memoizes the signing key derived from configuration.
//
// # Credential types
//
// Access credentials carry {sub, roles, iat, exp, jti, typ=access}. Refresh
// credentials carry {sub, iat, exp, jti, typ=refresh} and never a role claim.
// The typ claim keeps one kind from being accepted where the other is expected.
//
// # What this package must NOT do
//
//   - Consult session or revocation state (callers combine those checks).
//   - Treat an expired credential as an error in [Codec.IsExpired]; expiry is a
//     normal outcome there.
package jwt
