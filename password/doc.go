// Package password hashes and verifies the passwords held by the principal
// directory.
//
// Two encodings are understood:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//	$2a$<cost>$<bcrypt payload>   (also $2b$ and $2y$)
//
// [Verifier] dispatches on the prefix so directories seeded by other tooling
// keep working, and reports [Verifier.NeedsUpgrade] for hashes that should be
// re-encoded with the preferred scheme.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords.
package password
