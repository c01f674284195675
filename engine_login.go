package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
)

// Authenticate checks a username and password and issues an access token.
//
// Unknown usernames and wrong passwords both return ErrInvalidCredentials.
// Every attempt on a username is counted before the password is checked;
// after Lockout.LoginThreshold failures the username is locked for
// Lockout.LoginDuration and attempts return a *LockedError matching
// ErrAccountLocked, even with the right password.
func (e *Engine) Authenticate(ctx context.Context, username, plaintext string) (*TokenResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	res, err := flows.RunLogin(ctx, username, plaintext, e.loginFlowDeps())
	if err != nil {
		return nil, err
	}

	return &TokenResult{
		AccessToken: res.AccessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(e.tokens.TTL().Seconds()),
		ExpiresAt:   res.ExpiresAt,
	}, nil
}

func (e *Engine) loginFlowDeps() flows.LoginDeps {
	return flows.LoginDeps{
		Common:           e.commonFlowDeps(),
		UpgradeOnLogin:   e.config.Password.UpgradeOnLogin,
		FindByIdentifier: e.findByIdentifier,
		UpdatePassword:   e.updatePassword,
		VerifyPassword:   e.passwords.Verify,
		DummyVerify: func(plaintext string) {
			_ = e.passwords.Verify(plaintext, e.dummyHash)
		},
		NeedsUpgrade: e.passwords.NeedsUpgrade,
		HashPassword: e.passwords.Hash,
		Reserve: func(ctx context.Context, key string) error {
			if _, err := e.loginGuard.Reserve(ctx, key); err != nil {
				return mapAttemptError(err, ErrAccountLocked)
			}
			return nil
		},
		RecordSuccess: func(ctx context.Context, key string) error {
			return mapAttemptError(e.loginGuard.RecordSuccess(ctx, key), ErrAccountLocked)
		},
		IsLocked: func(err error) bool {
			return errors.Is(err, ErrAccountLocked)
		},
		IssueToken: e.issueToken,
		Metrics: flows.LoginMetrics{
			LoginSuccess: int(MetricLoginSuccess),
			LoginFailure: int(MetricLoginFailure),
			LoginLocked:  int(MetricLoginLocked),
			Rehash:       int(MetricPasswordRehash),
		},
		Events: flows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
			LoginLocked:  auditEventLoginLocked,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
		},
	}
}

// LoginLockoutRemaining reports how long username stays locked. It does
// not count an attempt.
func (e *Engine) LoginLockoutRemaining(ctx context.Context, username string) (time.Duration, error) {
	if e == nil || e.loginGuard == nil {
		return 0, ErrEngineNotReady
	}
	err := e.loginGuard.CheckAllowed(ctx, flows.NormalizeUsername(username))
	var locked *limiters.LockedError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &locked):
		return locked.RetryAfter, nil
	default:
		return 0, wrapBackend(err)
	}
}

func (e *Engine) clearLoginLockout(ctx context.Context, key string) error {
	return e.loginGuard.RecordSuccess(ctx, key)
}
