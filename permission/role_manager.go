package permission

import (
	"errors"
	"sync"
)

// RootPermission grants the registry's root bit when passed to RegisterRole.
const RootPermission = "*"

// RoleManager binds each Role to a Mask64 built from registered
// permission names. Configure it at startup, then Freeze it.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[Role]Mask64
	frozen bool
}

// NewRoleManager returns a RoleManager over registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[Role]Mask64),
	}
}

// RegisterRole stores the mask for role. Every permission must already be
// registered; RootPermission requires a registry with a reserved root bit.
func (rm *RoleManager) RegisterRole(role Role, permissions ...string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if !role.Valid() {
		return ErrUnknownRole
	}
	if _, exists := rm.roles[role]; exists {
		return errors.New("role already registered")
	}

	var mask Mask64
	for _, perm := range permissions {
		if perm == RootPermission {
			bit, ok := rm.registry.RootBit()
			if !ok {
				return errors.New("root permission requires a reserved root bit")
			}
			mask.Set(bit)
			continue
		}

		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return errors.New("permission not registered: " + perm)
		}
		mask.Set(bit)
	}

	rm.roles[role] = mask
	return nil
}

// Mask returns the mask registered for role.
func (rm *RoleManager) Mask(role Role) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[role]
	return mask, ok
}

// Can reports whether role holds permission. Unknown roles and unknown
// permissions never match.
func (rm *RoleManager) Can(role Role, permission string) bool {
	mask, ok := rm.Mask(role)
	if !ok {
		return false
	}
	bit, ok := rm.registry.Bit(permission)
	if !ok {
		return false
	}
	return mask.Has(bit, rm.registry.RootReserved())
}

// Freeze prevents further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	rm.frozen = true
	rm.mu.Unlock()
}
