package permission

import (
	"errors"
	"strings"
)

// Role is the single role an identity holds.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleEmployee Role = "EMPLOYEE"
	RoleChef     Role = "CHEF"
)

// ErrUnknownRole is returned for a role outside the defined set.
var ErrUnknownRole = errors.New("unknown role")

// Roles lists every defined role, lowest privilege first.
func Roles() []Role {
	return []Role{RoleCustomer, RoleEmployee, RoleChef}
}

// Valid reports whether r is a defined role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleEmployee, RoleChef:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole accepts a role name in any letter case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrUnknownRole
	}
	return r, nil
}
