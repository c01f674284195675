package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/stores"
)

// codeManager issues and redeems one-time codes. Each purpose has its own
// attempt namespace, so reset guesses never lock phone verification.
type codeManager struct {
	store  stores.CodeStore
	guards map[Purpose]*limiters.Guard
	cfg    OneTimeCodeConfig
	now    func() time.Time
}

func newCodeManager(store stores.CodeStore, attempts limiters.Store, cfg OneTimeCodeConfig, lockout LockoutConfig, now func() time.Time) *codeManager {
	policy := limiters.Policy{Threshold: lockout.CodeThreshold, Duration: lockout.CodeDuration}
	return &codeManager{
		store: store,
		guards: map[Purpose]*limiters.Guard{
			PurposePasswordReset:     limiters.NewGuard(attempts, policy, "otc:"+string(PurposePasswordReset), now),
			PurposePhoneVerification: limiters.NewGuard(attempts, policy, "otc:"+string(PurposePhoneVerification), now),
		},
		cfg: cfg,
		now: now,
	}
}

// issue stores a fresh code for (identityID, purpose), superseding any
// earlier one, and returns the plaintext for delivery. The attempt counter
// is left as is, so requesting codes cannot reset a lockout.
func (m *codeManager) issue(ctx context.Context, identityID string, purpose Purpose) (string, error) {
	var (
		code string
		err  error
	)
	switch purpose {
	case PurposePasswordReset:
		code, err = internal.NewAlphanumericCode(m.cfg.ResetCodeLength)
	case PurposePhoneVerification:
		code, err = internal.NewNumericCode(m.cfg.PhoneCodeDigits)
	default:
		return "", fmt.Errorf("unknown code purpose %q", purpose)
	}
	if err != nil {
		return "", err
	}

	now := m.now()
	record := &stores.CodeRecord{
		IdentityID: identityID,
		Purpose:    string(purpose),
		CodeHash:   internal.HashCode(code),
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.cfg.TTL),
	}
	if err := m.store.Put(ctx, record, now); err != nil {
		return "", mapCodeStoreError(err)
	}
	return code, nil
}

// validate counts one attempt under attemptKey before looking at the code.
// With an empty identityID it only counts and fails as ErrCodeInvalid.
// A match consumes the code atomically and clears the attempt counter.
func (m *codeManager) validate(ctx context.Context, attemptKey, identityID string, purpose Purpose, submitted string) (*stores.CodeRecord, error) {
	guard, ok := m.guards[purpose]
	if !ok {
		return nil, fmt.Errorf("unknown code purpose %q", purpose)
	}

	if _, err := guard.Reserve(ctx, attemptKey); err != nil {
		return nil, mapAttemptError(err, ErrTooManyAttempts)
	}

	normalized := internal.NormalizeCode(submitted)
	if identityID == "" || normalized == "" {
		return nil, ErrCodeInvalid
	}

	record, err := m.store.Consume(ctx, identityID, string(purpose), internal.HashCode(normalized), m.now())
	if err != nil {
		return nil, mapCodeStoreError(err)
	}

	if err := guard.RecordSuccess(ctx, attemptKey); err != nil {
		return nil, mapAttemptError(err, ErrTooManyAttempts)
	}
	return record, nil
}

func (m *codeManager) discard(ctx context.Context, identityID string, purpose Purpose) error {
	if err := m.store.Delete(ctx, identityID, string(purpose)); err != nil {
		return mapCodeStoreError(err)
	}
	return nil
}

// resetGrant authorizes exactly one password write for the identity whose
// reset code was redeemed.
type resetGrant struct {
	identityID string
	used       atomic.Bool
}

func (m *codeManager) redeemReset(ctx context.Context, attemptKey, identityID, submitted string) (flows.ResetGrant, error) {
	record, err := m.validate(ctx, attemptKey, identityID, PurposePasswordReset, submitted)
	if err != nil {
		return nil, err
	}
	return &resetGrant{identityID: record.IdentityID}, nil
}

func (g *resetGrant) Redeem(identityID string) error {
	if g == nil || identityID != g.identityID {
		return ErrCodeInvalid
	}
	if !g.used.CompareAndSwap(false, true) {
		return ErrCodeAlreadyUsed
	}
	return nil
}

func mapCodeStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrCodeNotFound), errors.Is(err, stores.ErrCodeMismatch):
		return ErrCodeInvalid
	case errors.Is(err, stores.ErrCodeConsumed):
		return ErrCodeAlreadyUsed
	case errors.Is(err, stores.ErrCodeExpired):
		return ErrCodeExpired
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
}

// mapAttemptError turns a limiter lock into a *LockedError around kind.
func mapAttemptError(err error, kind error) error {
	var locked *limiters.LockedError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &locked):
		return &LockedError{Err: kind, RetryAfter: locked.RetryAfter}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
}
