package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/permission"
)

// Role is the single role an identity holds.
type Role = permission.Role

const (
	RoleCustomer = permission.RoleCustomer
	RoleEmployee = permission.RoleEmployee
	RoleChef     = permission.RoleChef
)

// ParseRole accepts a role name in any letter case.
func ParseRole(s string) (Role, error) {
	return permission.ParseRole(s)
}

// Roles lists every role, lowest privilege first.
func Roles() []Role {
	return permission.Roles()
}

// Purpose binds a one-time code to the operation that may redeem it.
type Purpose string

const (
	PurposePasswordReset     Purpose = "password_reset"
	PurposePhoneVerification Purpose = "phone_verification"
)

// Identity is a registered principal. PasswordHash is the PHC string and is
// never serialized to callers.
type Identity struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	PhoneNumber   string    `json:"phone_number"`
	PhoneVerified bool      `json:"phone_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IdentityRepository persists identities. Usernames and phone numbers are
// stored normalized by the engine.
//
// Create must reject a duplicate username or phone number atomically with
// ErrDuplicateIdentity. Lookups return ErrIdentityNotFound for a missing
// record.
//
// Updates are narrow: each writes only the columns its operation owns, so a
// concurrent write to another column is never reverted. Conditional updates
// return ErrIdentityChanged when their precondition no longer holds.
type IdentityRepository interface {
	FindByIdentifier(ctx context.Context, username string) (Identity, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	FindByContact(ctx context.Context, phone string) (Identity, error)
	Create(ctx context.Context, identity Identity) error

	// UpdatePassword stores hash. A non-empty expectedHash makes the write
	// conditional on the stored hash still being expectedHash.
	UpdatePassword(ctx context.Context, id, expectedHash, hash string, at time.Time) error
	// UpdateRole moves id from role from to role to.
	UpdateRole(ctx context.Context, id string, from, to Role, at time.Time) error
	// UpdateProfile applies the non-nil fields of changes and returns the
	// stored identity. A new phone number clears PhoneVerified in the same
	// write and must be rejected with ErrDuplicateIdentity when another
	// identity owns it.
	UpdateProfile(ctx context.Context, id string, changes ProfileChanges, at time.Time) (Identity, error)
	// MarkPhoneVerified sets PhoneVerified while the stored phone number is
	// still phone.
	MarkPhoneVerified(ctx context.Context, id, phone string, at time.Time) error
}

// ProfileChanges names the profile columns an update writes. Nil fields are
// left untouched.
type ProfileChanges struct {
	FirstName   *string
	LastName    *string
	PhoneNumber *string
}

// RegisterInput is the input for [Engine.Register]. The tags bound the raw
// input; Register checks the full format after normalizing it.
type RegisterInput struct {
	Username    string `json:"username" validate:"required,max=150"`
	Password    string `json:"password" validate:"required,max=1024"`
	FirstName   string `json:"first_name" validate:"max=150"`
	LastName    string `json:"last_name" validate:"max=150"`
	PhoneNumber string `json:"phone_number" validate:"required,max=32"`
}

// TokenResult is returned by [Engine.Authenticate].
type TokenResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Claims are the verified claims of an access token.
type Claims struct {
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
