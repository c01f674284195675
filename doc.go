// Package authcore is the identity and access-control core of a
// role-stratified service: password login with lockout, HS256 access
// tokens, one-time codes for phone verification and password reset, and
// role changes guarded by a fixed CUSTOMER < EMPLOYEE < CHEF hierarchy.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [IdentityRepository] contract and value types (Identity, TokenResult,
// MetricsSnapshot). Flow orchestration, attempt counting, code storage and
// audit dispatch live under internal/ and are never exported directly.
// Attempt counters and one-time codes are shared through Redis when more
// than one instance serves traffic.
//
// # What this package must NOT do
//
//   - Log or return plaintext passwords, one-time codes, tokens or the
//     signing secret.
//   - Tell a caller whether a username exists through error values or
//     timing on login and password reset.
//   - Read configuration from the environment. Config is injected once.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore
