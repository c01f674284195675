// Package memory is a process-local authcore.IdentityRepository for
// development and tests. Uniqueness of usernames and phone numbers is
// enforced under one mutex, so writes are atomic with their duplicate and
// precondition checks.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authcore"
)

// Repository keeps identities in memory. The zero value is not usable; use
// New.
type Repository struct {
	mu         sync.RWMutex
	byID       map[string]authcore.Identity
	byUsername map[string]string
	byPhone    map[string]string
}

func New() *Repository {
	return &Repository{
		byID:       make(map[string]authcore.Identity),
		byUsername: make(map[string]string),
		byPhone:    make(map[string]string),
	}
}

func (r *Repository) FindByIdentifier(ctx context.Context, username string) (authcore.Identity, error) {
	if err := ctx.Err(); err != nil {
		return authcore.Identity{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return authcore.Identity{}, authcore.ErrIdentityNotFound
	}
	return r.byID[id], nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (authcore.Identity, error) {
	if err := ctx.Err(); err != nil {
		return authcore.Identity{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byID[id]
	if !ok {
		return authcore.Identity{}, authcore.ErrIdentityNotFound
	}
	return identity, nil
}

func (r *Repository) FindByContact(ctx context.Context, phone string) (authcore.Identity, error) {
	if err := ctx.Err(); err != nil {
		return authcore.Identity{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPhone[phone]
	if !ok || phone == "" {
		return authcore.Identity{}, authcore.ErrIdentityNotFound
	}
	return r.byID[id], nil
}

// Create stores a new identity. A taken ID, username or phone number
// returns authcore.ErrDuplicateIdentity.
func (r *Repository) Create(ctx context.Context, identity authcore.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[identity.ID]; ok {
		return authcore.ErrDuplicateIdentity
	}
	if _, ok := r.byUsername[identity.Username]; ok {
		return authcore.ErrDuplicateIdentity
	}
	if identity.PhoneNumber != "" {
		if _, ok := r.byPhone[identity.PhoneNumber]; ok {
			return authcore.ErrDuplicateIdentity
		}
		r.byPhone[identity.PhoneNumber] = identity.ID
	}
	r.byID[identity.ID] = identity
	r.byUsername[identity.Username] = identity.ID
	return nil
}

// UpdatePassword stores hash. With expectedHash set, a stored hash that no
// longer matches returns authcore.ErrIdentityChanged.
func (r *Repository) UpdatePassword(ctx context.Context, id, expectedHash, hash string, at time.Time) error {
	return r.update(ctx, id, func(identity *authcore.Identity) error {
		if expectedHash != "" && identity.PasswordHash != expectedHash {
			return authcore.ErrIdentityChanged
		}
		identity.PasswordHash = hash
		identity.UpdatedAt = at
		return nil
	})
}

// UpdateRole moves id from role from to role to. A stored role other than
// from returns authcore.ErrIdentityChanged.
func (r *Repository) UpdateRole(ctx context.Context, id string, from, to authcore.Role, at time.Time) error {
	return r.update(ctx, id, func(identity *authcore.Identity) error {
		if identity.Role != from {
			return authcore.ErrIdentityChanged
		}
		identity.Role = to
		identity.UpdatedAt = at
		return nil
	})
}

// MarkPhoneVerified flags phone as verified. A stored phone number other
// than phone returns authcore.ErrIdentityChanged.
func (r *Repository) MarkPhoneVerified(ctx context.Context, id, phone string, at time.Time) error {
	return r.update(ctx, id, func(identity *authcore.Identity) error {
		if identity.PhoneNumber != phone {
			return authcore.ErrIdentityChanged
		}
		identity.PhoneVerified = true
		identity.UpdatedAt = at
		return nil
	})
}

// UpdateProfile writes the non-nil fields of changes. A new phone number is
// stored unverified; one owned by another identity returns
// authcore.ErrDuplicateIdentity.
func (r *Repository) UpdateProfile(ctx context.Context, id string, changes authcore.ProfileChanges, at time.Time) (authcore.Identity, error) {
	var out authcore.Identity
	err := r.update(ctx, id, func(identity *authcore.Identity) error {
		if p := changes.PhoneNumber; p != nil && *p != identity.PhoneNumber {
			if owner, taken := r.byPhone[*p]; taken && owner != id {
				return authcore.ErrDuplicateIdentity
			}
			if identity.PhoneNumber != "" {
				delete(r.byPhone, identity.PhoneNumber)
			}
			if *p != "" {
				r.byPhone[*p] = id
			}
			identity.PhoneNumber = *p
			identity.PhoneVerified = false
		}
		if changes.FirstName != nil {
			identity.FirstName = *changes.FirstName
		}
		if changes.LastName != nil {
			identity.LastName = *changes.LastName
		}
		identity.UpdatedAt = at
		out = *identity
		return nil
	})
	return out, err
}

// update applies fn to a copy of the stored identity under the write lock
// and stores the copy only when fn succeeds.
func (r *Repository) update(ctx context.Context, id string, fn func(*authcore.Identity) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return authcore.ErrIdentityNotFound
	}
	if err := fn(&identity); err != nil {
		return err
	}
	r.byID[id] = identity
	return nil
}

// Len returns the number of stored identities.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
