package permission

import (
	"errors"
	"fmt"
	"slices"
)

// Permission names bound to roles by DefaultRoleManager.
const (
	PermManageRoles     = "roles.manage"
	PermUpdateProfile   = "profile.update"
	PermReadDiagnostics = "diagnostics.read"
)

var (
	ErrInsufficientRole          = errors.New("insufficient role")
	ErrSelfEscalationDenied      = errors.New("identities cannot change their own role")
	ErrPrivilegeAssignmentDenied = errors.New("privilege assignment denied")

	ErrHighestRoleAssignment = fmt.Errorf("%w: only the highest role may assign it", ErrPrivilegeAssignmentDenied)
	ErrHighestRoleAccount    = fmt.Errorf("%w: only the highest role may modify its holders", ErrPrivilegeAssignmentDenied)
)

// Subject is the part of an identity the guard decides on.
type Subject struct {
	ID   string
	Role Role
}

// DefaultRoleManager returns the frozen role table used in production.
// CHEF holds the root bit; EMPLOYEE may manage roles; CUSTOMER may only
// update its own profile.
func DefaultRoleManager() *RoleManager {
	reg := NewRegistry(true)
	for _, p := range []string{PermManageRoles, PermUpdateProfile, PermReadDiagnostics} {
		if _, err := reg.Register(p); err != nil {
			panic(err)
		}
	}
	reg.Freeze()

	rm := NewRoleManager(reg)
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(rm.RegisterRole(RoleCustomer, PermUpdateProfile))
	must(rm.RegisterRole(RoleEmployee, PermUpdateProfile, PermManageRoles))
	must(rm.RegisterRole(RoleChef, RootPermission))
	rm.Freeze()
	return rm
}

// Guard makes authorization decisions. It never mutates anything.
type Guard struct {
	highest Role
	roles   *RoleManager
}

// NewGuard returns a Guard treating highest as the highest privilege role.
func NewGuard(highest Role, roles *RoleManager) (*Guard, error) {
	if roles == nil {
		return nil, errors.New("permission: role manager is required")
	}
	if _, ok := roles.Mask(highest); !ok {
		return nil, fmt.Errorf("permission: highest role %q is not registered", highest)
	}
	return &Guard{highest: highest, roles: roles}, nil
}

// DefaultGuard returns a Guard over DefaultRoleManager with CHEF highest.
func DefaultGuard() *Guard {
	g, err := NewGuard(RoleChef, DefaultRoleManager())
	if err != nil {
		panic(err)
	}
	return g
}

// Highest returns the highest privilege role.
func (g *Guard) Highest() Role {
	return g.highest
}

// Authorize allows actor when it is one of required. An empty required set
// admits any defined role.
func (g *Guard) Authorize(actor Role, required ...Role) error {
	if !actor.Valid() {
		return ErrInsufficientRole
	}
	if len(required) == 0 || slices.Contains(required, actor) {
		return nil
	}
	return ErrInsufficientRole
}

// Allow checks a named permission against actor's mask.
func (g *Guard) Allow(actor Role, perm string) error {
	if !g.roles.Can(actor, perm) {
		return ErrInsufficientRole
	}
	return nil
}

// CanChangeRole decides whether actor may set target's role to requested.
// Rules run in a fixed order: self change, assigning the highest role,
// modifying a holder of the highest role, then the roles.manage permission.
// The self check comes first so the highest role cannot change itself.
func (g *Guard) CanChangeRole(actor, target Subject, requested Role) error {
	if actor.ID == target.ID {
		return ErrSelfEscalationDenied
	}
	if requested == g.highest && actor.Role != g.highest {
		return ErrHighestRoleAssignment
	}
	if target.Role == g.highest && actor.Role != g.highest {
		return ErrHighestRoleAccount
	}
	if !g.roles.Can(actor.Role, PermManageRoles) {
		return ErrInsufficientRole
	}
	if !requested.Valid() {
		return ErrUnknownRole
	}
	return nil
}
