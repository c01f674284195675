// Package limiters implements per-key failed-attempt lockout.
//
// A [Guard] applies one [Policy] (threshold, duration) to a key namespace in a
// [Store]. Login attempts and one-time-code checks use separate namespaces
// over the same store.
//
//   - [MemoryStore]: mutex-guarded map, process-local.
//   - [RedisStore]: one Lua script per operation, shared across instances.
//
// # Architecture boundaries
//
// Stores own atomicity: [Store.Hit] is a single check-and-increment step.
// Guards translate records into [LockedError] values; flow functions decide
// what the caller sees.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Know about identities, passwords or codes beyond opaque keys.
package limiters
