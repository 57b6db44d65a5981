// Package middleware authenticates HTTP requests against a taskmanager.Engine.
//
// Requests pass through an explicit, ordered list of [Interceptor] values built
// with [Pipeline]. Each interceptor returns an [Outcome]: proceed (optionally
// with a derived request), bypass the remaining interceptors, or reject with a
// status code. The first rejection ends the chain.
//
// # Interceptors
//
//   - [ClientIP] records the caller address for login throttling and audit.
//   - [SkipPaths] bypasses authentication for the session-management routes.
//   - [Authenticate] validates the bearer credential, renews it silently from
//     the refresh cookie and exposes the renewed credential in
//     X-New-Access-Token.
//   - [RequireRole] gates on the authenticated identity's role.
//
// This package never parses credentials or touches the stores itself; every
// decision comes from Engine.Authenticate.
package middleware
