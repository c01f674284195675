package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
)

// ChangeRole sets the role of the identity named targetUsername on behalf
// of the token holder. The role guard decides first, so actors it rejects
// learn nothing about whether the target exists. Setting the role a target
// already holds succeeds without a write.
func (e *Engine) ChangeRole(ctx context.Context, token, targetUsername string, role Role) (Identity, error) {
	if e == nil || e.roles == nil {
		return Identity{}, ErrEngineNotReady
	}

	claims, err := e.ValidateToken(ctx, token)
	if err != nil {
		return Identity{}, err
	}

	acct, err := flows.RunChangeRole(ctx, claims.Subject, targetUsername, role, e.roleChangeFlowDeps())
	if err != nil {
		return Identity{}, err
	}
	return toIdentity(acct), nil
}

func (e *Engine) roleChangeFlowDeps() flows.RoleChangeDeps {
	return flows.RoleChangeDeps{
		Common:           e.commonFlowDeps(),
		FindByID:         e.findByID,
		FindByIdentifier: e.findByIdentifier,
		UpdateRole:       e.updateRole,
		CanChangeRole:    e.roles.CanChangeRole,
		Metrics: flows.RoleChangeMetrics{
			RoleChanged: int(MetricRoleChanged),
			RoleDenied:  int(MetricRoleDenied),
		},
		Events: flows.RoleChangeEvents{
			RoleChanged: auditEventRoleChanged,
			RoleDenied:  auditEventRoleDenied,
		},
		Errors: flows.RoleChangeErrors{
			EngineNotReady:   ErrEngineNotReady,
			TokenInvalid:     ErrTokenInvalid,
			IdentityNotFound: ErrIdentityNotFound,
			Changed:          ErrIdentityChanged,
		},
	}
}
