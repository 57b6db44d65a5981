// Package revocation records access credentials that were explicitly
// invalidated before their natural expiry (logout). Entries are keyed by a
// SHA-256 digest of the credential so raw tokens never become store keys.
package revocation
