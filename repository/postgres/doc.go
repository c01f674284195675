// Package postgres stores authcore identities in PostgreSQL through a pgx
// connection pool.
//
// Uniqueness of usernames and phone numbers is enforced by table
// constraints; a violation surfaces as [authcore.ErrDuplicateIdentity].
// The schema ships embedded and is applied with [Migrate].
//
// # What this package must NOT do
//
//   - Hash or verify passwords.
//   - Normalize usernames or phone numbers; the engine does that.
package postgres
