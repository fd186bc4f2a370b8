// Package password hashes new passwords with Argon2id and verifies stored hashes.
//
// New hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Rows migrated from older systems may carry bcrypt hashes ($2a$, $2b$, $2y$). They
// verify normally and [Hasher.NeedsRehash] reports them so the caller can upgrade.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords.
package password
