// Package taskmanager is the authentication and session lifecycle engine of the
// task-manager backend: it issues, verifies, silently renews and revokes the
// bearer credentials that protect the task and user APIs.
//
// Engine methods are safe for concurrent use once [Builder.Build] returns.
//
// # Architecture boundaries
//
// The root package exposes [Engine], [Builder], [Config], identity context
// helpers and value types. Credential encoding lives in jwt, TTL storage in kv,
// session/revocation/cookie, and the protocol state machines in internal/flows.
// HTTP adapters live in middleware and handler.
//
// # What this package must NOT do
//
//   - Expose store clients or signing keys in its public API.
//   - Log credential values.
//   - Import middleware, handler or directory (they import this package).
package taskmanager
