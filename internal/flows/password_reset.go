package flows

import (
	"context"
)

// ResetGrant authorizes exactly one password write after a reset code was
// redeemed.
type ResetGrant interface {
	Redeem(identityID string) error
}

type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
}

type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
}

type PasswordResetErrors struct {
	EngineNotReady error
	CodeInvalid    error
}

type PasswordResetDeps struct {
	Common

	FindByIdentifier func(context.Context, string) (Account, error)
	// SetPassword writes only the password hash of identityID.
	SetPassword func(ctx context.Context, identityID, hash string) error

	CheckPolicy  func(string) error
	HashPassword func(string) (string, error)

	IssueCode   func(ctx context.Context, identityID string) (string, error)
	DiscardCode func(ctx context.Context, identityID string) error
	Dispatch    func(ctx context.Context, destination, code string) error
	// RedeemCode counts one attempt under attemptKey and, when identityID is
	// set, consumes the code and returns a grant for one password write.
	RedeemCode func(ctx context.Context, attemptKey, identityID, code string) (ResetGrant, error)

	ClearLoginLockout     func(ctx context.Context, key string) error
	SleepEnumerationDelay func(context.Context) error

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestPasswordReset issues and dispatches a reset code when the
// identity exists and has a phone. Every path sleeps the enumeration delay
// first and returns nil unless the repository or context fails.
func RunRequestPasswordReset(ctx context.Context, username string, deps PasswordResetDeps) error {
	normalizeCommon(&deps.Common)

	if deps.FindByIdentifier == nil || deps.IssueCode == nil || deps.Dispatch == nil {
		return deps.Errors.EngineNotReady
	}

	if deps.SleepEnumerationDelay != nil {
		if err := deps.SleepEnumerationDelay(ctx); err != nil {
			return err
		}
	}

	key := NormalizeUsername(username)
	quiet := func(identityID, reason string) error {
		deps.MetricInc(deps.Metrics.PasswordResetRequest)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, identityID, key, nil, func() map[string]string {
			return map[string]string{"enumeration_safe": "true", "reason": reason}
		})
		return nil
	}

	if key == "" {
		return quiet("", "empty_identifier")
	}

	acct, err := deps.FindByIdentifier(ctx, key)
	if err != nil {
		if deps.IsNotFound(err) {
			return quiet("", "unknown_identity")
		}
		return deps.WrapBackend(err)
	}
	if acct.PhoneNumber == "" {
		return quiet(acct.ID, "no_contact")
	}

	code, err := deps.IssueCode(ctx, acct.ID)
	if err != nil {
		deps.Warn(ctx, "reset code issuance failed", err)
		return quiet(acct.ID, "issue_failed")
	}

	if err := deps.Dispatch(ctx, acct.PhoneNumber, code); err != nil {
		if deps.DiscardCode != nil {
			if derr := deps.DiscardCode(ctx, acct.ID); derr != nil {
				deps.Warn(ctx, "discard undelivered code failed", derr)
			}
		}
		deps.Warn(ctx, "reset code delivery failed", err)
		return quiet(acct.ID, "delivery_failed")
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, acct.ID, key, nil, nil)
	return nil
}

// RunConfirmPasswordReset checks the new password against policy, redeems
// the reset code, and writes the new hash through the single-use grant.
// A weak password is rejected before the code is touched.
func RunConfirmPasswordReset(ctx context.Context, username, code, newPassword string, deps PasswordResetDeps) error {
	normalizeCommon(&deps.Common)

	if deps.FindByIdentifier == nil || deps.SetPassword == nil || deps.HashPassword == nil || deps.RedeemCode == nil {
		return deps.Errors.EngineNotReady
	}

	key := NormalizeUsername(username)
	fail := func(identityID string, err error) error {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, identityID, key, err, nil)
		return err
	}

	if key == "" {
		return fail("", deps.Errors.CodeInvalid)
	}
	if deps.CheckPolicy != nil {
		if err := deps.CheckPolicy(newPassword); err != nil {
			return fail("", err)
		}
	}

	acct, err := deps.FindByIdentifier(ctx, key)
	if err != nil {
		if !deps.IsNotFound(err) {
			return deps.WrapBackend(err)
		}
		_, rerr := deps.RedeemCode(ctx, key, "", code)
		return fail("", rerr)
	}

	grant, err := deps.RedeemCode(ctx, key, acct.ID, code)
	if err != nil {
		return fail(acct.ID, err)
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return deps.WrapBackend(err)
	}
	if err := grant.Redeem(acct.ID); err != nil {
		return fail(acct.ID, err)
	}

	if err := deps.SetPassword(ctx, acct.ID, hash); err != nil {
		return deps.WrapBackend(err)
	}

	if deps.ClearLoginLockout != nil {
		if err := deps.ClearLoginLockout(ctx, key); err != nil {
			deps.Warn(ctx, "clear login lockout after reset failed", err)
		}
	}

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, acct.ID, key, nil, nil)
	return nil
}
