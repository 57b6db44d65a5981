// Package flows contains the protocol state machines behind every Engine
// operation: login, logout, refresh and per-request authentication.
//
// Each Run function takes a typed dependency struct and returns a result value
// carrying a failure kind. The Engine maps failure kinds onto its public
// sentinel errors, metrics and audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (import cycle).
//   - Perform I/O except through its dependency interfaces.
package flows
