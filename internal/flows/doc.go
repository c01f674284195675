// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRegister, RunConfirmPasswordReset, etc.)
// accepts a typed dependency struct of closures and returns results without
// side effects beyond those dependencies. Tests drive flows with in-memory
// closures; the Engine wires the real repository, stores, and managers.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the identity repository, password
// hasher, token manager, attempt guards, code manager, notification
// dispatcher, audit, and metrics. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency closures.
//   - Log or return plaintext passwords or codes.
package flows
