package flows

import (
	"context"

	"github.com/MrEthical07/authcore/permission"
)

type RoleChangeMetrics struct {
	RoleChanged int
	RoleDenied  int
}

type RoleChangeEvents struct {
	RoleChanged string
	RoleDenied  string
}

type RoleChangeErrors struct {
	EngineNotReady   error
	TokenInvalid     error
	IdentityNotFound error
	Changed          error
}

type RoleChangeDeps struct {
	Common

	FindByID         func(context.Context, string) (Account, error)
	FindByIdentifier func(context.Context, string) (Account, error)
	// UpdateRole moves identityID from role from to role to and fails with
	// a conflict when the stored role is no longer from.
	UpdateRole func(ctx context.Context, identityID string, from, to permission.Role) error

	CanChangeRole func(actor, target permission.Subject, requested permission.Role) error

	Metrics RoleChangeMetrics
	Events  RoleChangeEvents
	Errors  RoleChangeErrors
}

// RunChangeRole sets the role of the identity named targetUsername. The
// guard decides before anything is written, and the write only lands while
// the target still holds the role the guard decided on. A missing target is
// decided against an empty subject, so only actors the guard admits learn
// that the target does not exist.
func RunChangeRole(ctx context.Context, actorID, targetUsername string, requested permission.Role, deps RoleChangeDeps) (Account, error) {
	normalizeCommon(&deps.Common)

	if deps.FindByID == nil || deps.FindByIdentifier == nil || deps.UpdateRole == nil || deps.CanChangeRole == nil {
		return Account{}, deps.Errors.EngineNotReady
	}

	actor, err := deps.FindByID(ctx, actorID)
	if err != nil {
		if deps.IsNotFound(err) {
			return Account{}, deps.Errors.TokenInvalid
		}
		return Account{}, deps.WrapBackend(err)
	}

	key := NormalizeUsername(targetUsername)
	target, err := deps.FindByIdentifier(ctx, key)
	found := err == nil
	if err != nil && !deps.IsNotFound(err) {
		return Account{}, deps.WrapBackend(err)
	}

	targetSubject := permission.Subject{}
	if found {
		targetSubject = permission.Subject{ID: target.ID, Role: target.Role}
	}

	if err := deps.CanChangeRole(permission.Subject{ID: actor.ID, Role: actor.Role}, targetSubject, requested); err != nil {
		deps.MetricInc(deps.Metrics.RoleDenied)
		deps.EmitAudit(ctx, deps.Events.RoleDenied, false, actor.ID, key, err, func() map[string]string {
			return map[string]string{
				"actor_role":     actor.Role.String(),
				"requested_role": requested.String(),
			}
		})
		return Account{}, err
	}

	if !found {
		return Account{}, deps.Errors.IdentityNotFound
	}
	if target.Role == requested {
		return target, nil
	}

	previous := target.Role
	target.Role = requested
	target.UpdatedAt = deps.Now()
	if err := deps.UpdateRole(ctx, target.ID, previous, requested); err != nil {
		if deps.IsConflict(err) && deps.Errors.Changed != nil {
			return Account{}, deps.Errors.Changed
		}
		return Account{}, deps.WrapBackend(err)
	}

	deps.MetricInc(deps.Metrics.RoleChanged)
	deps.EmitAudit(ctx, deps.Events.RoleChanged, true, actor.ID, key, nil, func() map[string]string {
		return map[string]string{
			"target_id": target.ID,
			"from_role": previous.String(),
			"to_role":   requested.String(),
		}
	})
	return target, nil
}
