// Package password implements password hashing, verification and the password
// composition policy.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.Verify] also accepts bcrypt hashes ($2a$, $2b$, $2y$) so accounts
// imported from older systems can sign in; [Argon2.NeedsUpgrade] flags them (and
// Argon2 hashes with weaker parameters) for rehash after a successful sign-in.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other otpgate package.
//   - Log plaintext passwords.
package password
