// Package permission holds the role model and the authorization guard.
//
// # Roles and masks
//
// Each [Role] maps to a [Mask64] of permission bits assigned by a frozen
// [Registry]. The highest role holds the reserved root bit and therefore
// every permission. [DefaultRoleManager] builds the production table.
//
// # Role changes
//
// [Guard.CanChangeRole] evaluates its rules in a fixed order. A self change is
// denied before any role-specific rule runs, so even the highest role cannot
// alter its own role. Assigning the highest role, or touching an account that
// holds it, requires the highest role. Only then does the roles.manage
// permission decide.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import authcore, jwt, or any internal package.
//   - Persist role changes; callers do that after a nil decision.
package permission
