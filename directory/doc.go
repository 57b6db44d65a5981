// Package directory provides principal directories for taskmanager.Engine:
// an in-memory map for tests and single-process setups, and a PostgreSQL
// table lookup for the bundled server.
//
// Both return errors wrapping taskmanager.ErrUnknownPrincipal for usernames
// they do not hold. Roles are read on every lookup, so a role change takes
// effect on the principal's next request.
package directory
