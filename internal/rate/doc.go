// Package rate throttles failed login attempts with fixed-window counters.
//
// # Window semantics
//
// INCR on every failure; the window starts with the first failure and lasts
// LoginCooldown. Key prefixes:
//   - rl:u: failures per username
//   - rl:ip: failures per client IP
//
// # What this package must NOT do
//
//   - Decide what counts as a failure (the login flow does).
//   - Be imported outside this module.
package rate
