// Package jwt issues and verifies short-lived HS256 access tokens.
//
// Tokens are stateless: expiry is the only invalidation mechanism, so the
// configured TTL is kept in minutes. Verification always checks the
// signature and algorithm before any claim is trusted; there is no option to
// skip it.
package jwt
