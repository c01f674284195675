// Package password implements credential hashing and strength policy.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The salt is unique per call and travels inside the encoded value, so
// verification needs nothing besides the stored string. [Argon2.NeedsUpgrade]
// reports hashes produced with weaker parameters so the caller can rehash on
// the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing, verification and the [Policy] check. Persisting
// the resulting hash is the caller's job.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other authcore package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
