// Package internal contains helpers private to authcore, chiefly secure
// random generation for one-time codes and signing secrets.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//   - limiters: per-key failed-attempt lockout (memory and Redis stores)
//   - logging: zap logger construction and log-safe value helpers
//   - stores: one-time code persistence (memory and Redis)
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
