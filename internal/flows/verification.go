package flows

import (
	"context"
)

type VerificationMetrics struct {
	VerificationRequest int
	VerificationSuccess int
	VerificationFailure int
}

type VerificationEvents struct {
	VerificationRequest string
	VerificationConfirm string
}

type VerificationErrors struct {
	EngineNotReady  error
	InvalidRequest  error
	AlreadyVerified error
	CodeInvalid     error
	DeliveryFailed  error
}

type VerificationDeps struct {
	Common

	FindByIdentifier func(context.Context, string) (Account, error)
	// MarkPhoneVerified flags phone as verified and fails with a conflict
	// when the stored phone number is no longer phone.
	MarkPhoneVerified func(ctx context.Context, identityID, phone string) error

	IssueCode   func(ctx context.Context, identityID string) (string, error)
	DiscardCode func(ctx context.Context, identityID string) error
	Dispatch    func(ctx context.Context, destination, code string) error
	// ValidateCode counts one attempt under attemptKey and, when identityID
	// is set, consumes the matching code. An empty identityID only counts.
	ValidateCode func(ctx context.Context, attemptKey, identityID, code string) error

	Metrics VerificationMetrics
	Events  VerificationEvents
	Errors  VerificationErrors
}

// RunRequestContactVerification issues a phone code for an unverified
// identity and hands it to the dispatcher. A failed delivery discards the
// code so nothing undelivered stays redeemable.
func RunRequestContactVerification(ctx context.Context, username string, deps VerificationDeps) error {
	normalizeCommon(&deps.Common)

	if deps.FindByIdentifier == nil || deps.IssueCode == nil || deps.Dispatch == nil {
		return deps.Errors.EngineNotReady
	}

	key := NormalizeUsername(username)
	reject := func(identityID string, err error, reason string) error {
		deps.EmitAudit(ctx, deps.Events.VerificationRequest, false, identityID, key, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	if key == "" {
		return reject("", deps.Errors.InvalidRequest, "empty_identifier")
	}

	acct, err := deps.FindByIdentifier(ctx, key)
	if err != nil {
		if deps.IsNotFound(err) {
			return reject("", deps.Errors.InvalidRequest, "unknown_identity")
		}
		return deps.WrapBackend(err)
	}
	if acct.PhoneVerified {
		return reject(acct.ID, deps.Errors.AlreadyVerified, "already_verified")
	}
	if acct.PhoneNumber == "" {
		return reject(acct.ID, deps.Errors.InvalidRequest, "no_contact")
	}

	code, err := deps.IssueCode(ctx, acct.ID)
	if err != nil {
		return deps.WrapBackend(err)
	}

	if err := deps.Dispatch(ctx, acct.PhoneNumber, code); err != nil {
		if deps.DiscardCode != nil {
			if derr := deps.DiscardCode(ctx, acct.ID); derr != nil {
				deps.Warn(ctx, "discard undelivered code failed", derr)
			}
		}
		deps.Warn(ctx, "verification code delivery failed", err)
		return reject(acct.ID, deps.Errors.DeliveryFailed, "delivery_failed")
	}

	deps.MetricInc(deps.Metrics.VerificationRequest)
	deps.EmitAudit(ctx, deps.Events.VerificationRequest, true, acct.ID, key, nil, nil)
	return nil
}

// RunConfirmContactVerification redeems a phone code and marks the phone
// verified. Unknown identities count an attempt and fail like a wrong code,
// as does a phone number changed while the code was outstanding.
func RunConfirmContactVerification(ctx context.Context, username, code string, deps VerificationDeps) error {
	normalizeCommon(&deps.Common)

	if deps.FindByIdentifier == nil || deps.MarkPhoneVerified == nil || deps.ValidateCode == nil {
		return deps.Errors.EngineNotReady
	}

	key := NormalizeUsername(username)
	fail := func(identityID string, err error) error {
		deps.MetricInc(deps.Metrics.VerificationFailure)
		deps.EmitAudit(ctx, deps.Events.VerificationConfirm, false, identityID, key, err, nil)
		return err
	}

	if key == "" {
		return fail("", deps.Errors.CodeInvalid)
	}

	acct, err := deps.FindByIdentifier(ctx, key)
	if err != nil {
		if !deps.IsNotFound(err) {
			return deps.WrapBackend(err)
		}
		return fail("", deps.ValidateCode(ctx, key, "", code))
	}

	if err := deps.ValidateCode(ctx, key, acct.ID, code); err != nil {
		return fail(acct.ID, err)
	}

	if !acct.PhoneVerified {
		if err := deps.MarkPhoneVerified(ctx, acct.ID, acct.PhoneNumber); err != nil {
			if deps.IsConflict(err) {
				// The code was sent to a number the identity no longer has.
				return fail(acct.ID, deps.Errors.CodeInvalid)
			}
			return deps.WrapBackend(err)
		}
	}

	deps.MetricInc(deps.Metrics.VerificationSuccess)
	deps.EmitAudit(ctx, deps.Events.VerificationConfirm, true, acct.ID, key, nil, nil)
	return nil
}
