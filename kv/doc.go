// Package kv defines the TTL-keyed key/value abstraction shared by the session
// and revocation stores, with a Redis backend for production and an in-memory
// backend for tests and single-process deployments.
//
// # Architecture boundaries
//
// Every operation touches exactly one key. Backends guarantee per-key atomicity
// of Set, Get and Delete and nothing more: there is no compare-and-swap, so
// concurrent writers to the same key resolve as last-write-wins.
//
// # What this package must NOT do
//
//   - Interpret stored values (callers own the encoding).
//   - Import the root package, jwt, session or revocation.
package kv
