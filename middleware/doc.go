// Package middleware exposes net/http adapters around authcore.Engine:
// bearer-token guards, role requirements, per-route request throttling and
// security response headers.
//
// # Guards
//
//   - [Guard] resolves the bearer token to an identity and stores both in
//     the request context.
//   - [RequireRoles] additionally requires one of a set of roles.
//
// # Throttling
//
// [Throttle] takes an explicit [Policy] per route. Counters live in a
// ulule/limiter store; use [NewRedisThrottleStore] when more than one
// instance serves traffic.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Make authorization decisions beyond what Engine.Authorize returns.
//   - Write internal error detail to responses. Every failure goes through
//     authcore.PublicError.
package middleware
