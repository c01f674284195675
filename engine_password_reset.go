package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
)

// RequestPasswordReset sends a reset code to the identity's phone number.
//
// It returns nil whether or not the username exists, has a phone number, or
// the code could be delivered, and every path waits a random
// Security.EnumerationDelayMin..Max first. Only repository and context
// failures surface.
func (e *Engine) RequestPasswordReset(ctx context.Context, username string) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}
	return flows.RunRequestPasswordReset(ctx, username, e.passwordResetFlowDeps())
}

// ConfirmPasswordReset checks newPassword against the policy, redeems the
// reset code and stores the new hash. A successful reset also clears the
// username's login lockout. The code is single use; a replay returns
// ErrCodeAlreadyUsed.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, username, code, newPassword string) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}
	return flows.RunConfirmPasswordReset(ctx, username, code, newPassword, e.passwordResetFlowDeps())
}

func (e *Engine) passwordResetFlowDeps() flows.PasswordResetDeps {
	return flows.PasswordResetDeps{
		Common:           e.commonFlowDeps(),
		FindByIdentifier: e.findByIdentifier,
		SetPassword:      e.setPassword,
		CheckPolicy:      e.config.PasswordPolicy.Check,
		HashPassword:     e.passwords.Hash,
		IssueCode: func(ctx context.Context, identityID string) (string, error) {
			return e.codes.issue(ctx, identityID, PurposePasswordReset)
		},
		DiscardCode: func(ctx context.Context, identityID string) error {
			return e.codes.discard(ctx, identityID, PurposePasswordReset)
		},
		Dispatch: e.dispatcherFor(PurposePasswordReset),
		RedeemCode: func(ctx context.Context, attemptKey, identityID, code string) (flows.ResetGrant, error) {
			grant, err := e.codes.redeemReset(ctx, attemptKey, identityID, code)
			if err != nil {
				e.countCodeLock(err)
				return nil, err
			}
			return grant, nil
		},
		ClearLoginLockout:     e.clearLoginLockout,
		SleepEnumerationDelay: e.sleepEnumerationDelay,
		Metrics: flows.PasswordResetMetrics{
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
		},
		Events: flows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
		},
		Errors: flows.PasswordResetErrors{
			EngineNotReady: ErrEngineNotReady,
			CodeInvalid:    ErrCodeInvalid,
		},
	}
}
