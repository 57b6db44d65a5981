// Package session persists the single active refresh credential of each
// principal in a TTL-bound key/value store.
//
// # Layout
//
// One record per principal under "refresh:<username>". Put overwrites, so a
// new login or a rotation replaces whatever session existed before.
//
// # What this package must NOT do
//
//   - Parse or verify credentials (the Engine compares and validates).
//   - Provide compare-and-swap semantics. Two concurrent rotations of the same
//     credential are last-write-wins.
package session
