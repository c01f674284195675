package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
)

// RequestContactVerification sends a phone verification code to the
// identity's phone number. A new request supersedes any earlier code.
func (e *Engine) RequestContactVerification(ctx context.Context, username string) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}
	return flows.RunRequestContactVerification(ctx, username, e.verificationFlowDeps())
}

// ConfirmContactVerification redeems a phone code and marks the phone
// verified. Attempts are counted per username; after
// Lockout.CodeThreshold failures a *LockedError matching
// ErrTooManyAttempts is returned.
func (e *Engine) ConfirmContactVerification(ctx context.Context, username, code string) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}
	return flows.RunConfirmContactVerification(ctx, username, code, e.verificationFlowDeps())
}

func (e *Engine) verificationFlowDeps() flows.VerificationDeps {
	return flows.VerificationDeps{
		Common:           e.commonFlowDeps(),
		FindByIdentifier:  e.findByIdentifier,
		MarkPhoneVerified: e.markPhoneVerified,
		IssueCode: func(ctx context.Context, identityID string) (string, error) {
			return e.codes.issue(ctx, identityID, PurposePhoneVerification)
		},
		DiscardCode: func(ctx context.Context, identityID string) error {
			return e.codes.discard(ctx, identityID, PurposePhoneVerification)
		},
		Dispatch: e.dispatcherFor(PurposePhoneVerification),
		ValidateCode: func(ctx context.Context, attemptKey, identityID, code string) error {
			_, err := e.codes.validate(ctx, attemptKey, identityID, PurposePhoneVerification, code)
			if err != nil {
				e.countCodeLock(err)
			}
			return err
		},
		Metrics: flows.VerificationMetrics{
			VerificationRequest: int(MetricVerificationRequest),
			VerificationSuccess: int(MetricVerificationSuccess),
			VerificationFailure: int(MetricVerificationFailure),
		},
		Events: flows.VerificationEvents{
			VerificationRequest: auditEventVerificationRequest,
			VerificationConfirm: auditEventVerificationConfirm,
		},
		Errors: flows.VerificationErrors{
			EngineNotReady:  ErrEngineNotReady,
			InvalidRequest:  ErrInvalidRequest,
			AlreadyVerified: ErrAlreadyVerified,
			CodeInvalid:     ErrCodeInvalid,
			DeliveryFailed:  ErrDeliveryFailed,
		},
	}
}

func (e *Engine) countCodeLock(err error) {
	if _, ok := RetryAfter(err); ok {
		e.metricInc(MetricCodeLocked)
	}
}
