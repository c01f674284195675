// Package stores persists one-time code records.
//
// # Design
//
// A record is keyed by (identity, purpose), so issuing a new code replaces
// the previous one. Only the SHA-256 of the code is kept, in a versioned
// binary encoding. [CodeStore.Consume] is an atomic test-and-mark: the Redis
// implementation uses WATCH/MULTI with retry, the memory implementation a
// mutex. Consumed records stay until expiry so replays are recognised.
// Secret comparisons use constant-time compare.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for code records.
// It does not generate codes, count failed attempts, or decide what the
// caller sees; those belong to the engine and internal/limiters.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for secret matching.
package stores
