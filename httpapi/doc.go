// Package httpapi is the thin HTTP adapter over authcore.Engine: a chi
// router with JSON bodies, per-route throttling and security headers.
//
// Every failure is shaped by authcore.PublicError, so responses carry one
// generic message per error family and never internal detail.
//
// The diagnostics route is only registered when the engine runs in
// development mode and is restricted to the CHEF role.
package httpapi
