package flows

import (
	"context"
	"time"
)

type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Account     Account
}

type LoginMetrics struct {
	LoginSuccess int
	LoginFailure int
	LoginLocked  int
	Rehash       int
}

type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
	LoginLocked  string
}

type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
}

type LoginDeps struct {
	Common

	UpgradeOnLogin bool

	FindByIdentifier func(context.Context, string) (Account, error)
	// UpdatePassword replaces expectedHash with hash and fails with a
	// conflict when the stored hash is no longer expectedHash.
	UpdatePassword func(ctx context.Context, identityID, expectedHash, hash string) error

	VerifyPassword func(plaintext, hash string) bool
	DummyVerify    func(plaintext string)
	NeedsUpgrade   func(hash string) bool
	HashPassword   func(string) (string, error)

	// Reserve counts the attempt before the credential is checked and
	// returns the mapped lockout error when the key is locked.
	Reserve       func(context.Context, string) error
	RecordSuccess func(context.Context, string) error
	IsLocked      func(error) bool

	IssueToken func(subject string) (string, time.Time, error)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin checks a username and password. The attempt is counted before
// the password is verified; only a correct password clears the counter.
// Unknown usernames cost a dummy hash verification and are counted under
// the same key space, so responses do not reveal which usernames exist.
func RunLogin(ctx context.Context, username, plaintext string, deps LoginDeps) (LoginResult, error) {
	normalizeCommon(&deps.Common)

	if deps.FindByIdentifier == nil || deps.VerifyPassword == nil || deps.Reserve == nil || deps.IssueToken == nil {
		return LoginResult{}, deps.Errors.EngineNotReady
	}

	key := NormalizeUsername(username)
	fail := func(identityID, reason string) (LoginResult, error) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, identityID, key, deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return LoginResult{}, deps.Errors.InvalidCredentials
	}

	if key == "" || plaintext == "" {
		return fail("", "empty_credentials")
	}

	if err := deps.Reserve(ctx, key); err != nil {
		if deps.IsLocked != nil && deps.IsLocked(err) {
			deps.MetricInc(deps.Metrics.LoginLocked)
			deps.EmitAudit(ctx, deps.Events.LoginLocked, false, "", key, err, nil)
			return LoginResult{}, err
		}
		return LoginResult{}, deps.WrapBackend(err)
	}

	acct, err := deps.FindByIdentifier(ctx, key)
	if err != nil {
		if !deps.IsNotFound(err) {
			return LoginResult{}, deps.WrapBackend(err)
		}
		if deps.DummyVerify != nil {
			deps.DummyVerify(plaintext)
		}
		return fail("", "unknown_identity")
	}

	if !deps.VerifyPassword(plaintext, acct.PasswordHash) {
		return fail(acct.ID, "bad_password")
	}

	if deps.RecordSuccess != nil {
		if err := deps.RecordSuccess(ctx, key); err != nil {
			return LoginResult{}, deps.WrapBackend(err)
		}
	}

	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePassword != nil && deps.NeedsUpgrade(acct.PasswordHash) {
		if upgraded, err := deps.HashPassword(plaintext); err != nil {
			deps.Warn(ctx, "password rehash failed", err)
		} else if err := deps.UpdatePassword(ctx, acct.ID, acct.PasswordHash, upgraded); err == nil {
			acct.PasswordHash = upgraded
			acct.UpdatedAt = deps.Now()
			deps.MetricInc(deps.Metrics.Rehash)
		} else if !deps.IsConflict(err) {
			// A conflict means the password changed after it was verified.
			deps.Warn(ctx, "password rehash save failed", err)
		}
	}

	token, expiresAt, err := deps.IssueToken(acct.ID)
	if err != nil {
		return LoginResult{}, deps.WrapBackend(err)
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, acct.ID, key, nil, nil)

	return LoginResult{AccessToken: token, ExpiresAt: expiresAt, Account: acct}, nil
}
