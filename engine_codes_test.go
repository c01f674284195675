package authcore_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var (
	phoneCodePattern = regexp.MustCompile(`^[0-9]{6}$`)
	resetCodePattern = regexp.MustCompile(`^[A-Z2-9]{8}$`)
)

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestContactVerificationRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "+1 555 0100", authcore.RoleCustomer)
	ctx := context.Background()

	if alice.PhoneVerified || alice.PhoneNumber != "+15550100" {
		t.Fatalf("unexpected registered identity %+v", alice)
	}

	if err := env.engine.RequestContactVerification(ctx, "alice"); err != nil {
		t.Fatalf("RequestContactVerification: %v", err)
	}
	msg := env.out.last(t)
	if msg.Destination != "+15550100" || msg.Purpose != string(authcore.PurposePhoneVerification) || !phoneCodePattern.MatchString(msg.Code) {
		t.Fatalf("unexpected dispatch %+v", msg)
	}

	if err := env.engine.ConfirmContactVerification(ctx, "alice", wrongCode(msg.Code)); !errors.Is(err, authcore.ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid for a wrong code, got %v", err)
	}
	if err := env.engine.ConfirmContactVerification(ctx, "alice", msg.Code); err != nil {
		t.Fatalf("ConfirmContactVerification: %v", err)
	}

	stored, _ := env.repo.FindByID(ctx, alice.ID)
	if !stored.PhoneVerified {
		t.Fatal("phone should be verified")
	}

	err := env.engine.ConfirmContactVerification(ctx, "alice", msg.Code)
	if !errors.Is(err, authcore.ErrCodeAlreadyUsed) || !errors.Is(err, authcore.ErrCodeInvalid) {
		t.Fatalf("expected replay to fail as ErrCodeAlreadyUsed, got %v", err)
	}
	if err := env.engine.RequestContactVerification(ctx, "alice"); !errors.Is(err, authcore.ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestContactVerificationNewCodeSupersedes(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	ctx := context.Background()

	_ = env.engine.RequestContactVerification(ctx, "alice")
	first := env.out.last(t).Code
	_ = env.engine.RequestContactVerification(ctx, "alice")
	second := env.out.last(t).Code

	if first != second {
		if err := env.engine.ConfirmContactVerification(ctx, "alice", first); !errors.Is(err, authcore.ErrCodeInvalid) {
			t.Fatalf("superseded code should be invalid, got %v", err)
		}
	}
	if err := env.engine.ConfirmContactVerification(ctx, "alice", second); err != nil {
		t.Fatalf("latest code should verify, got %v", err)
	}
}

func TestCodeExpiresAndIsCleared(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	ctx := context.Background()

	_ = env.engine.RequestContactVerification(ctx, "alice")
	code := env.out.last(t).Code

	env.clock.Advance(10 * time.Minute)
	if err := env.engine.ConfirmContactVerification(ctx, "alice", code); !errors.Is(err, authcore.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
	if err := env.engine.ConfirmContactVerification(ctx, "alice", code); !errors.Is(err, authcore.ErrCodeInvalid) {
		t.Fatalf("expired code should be gone, got %v", err)
	}
}

func TestCodeValidationLocksAfterThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	ctx := context.Background()

	_ = env.engine.RequestContactVerification(ctx, "alice")
	wrong := wrongCode(env.out.last(t).Code)

	for i := 1; i <= 5; i++ {
		if err := env.engine.ConfirmContactVerification(ctx, "alice", wrong); !errors.Is(err, authcore.ErrCodeInvalid) {
			t.Fatalf("attempt %d: expected ErrCodeInvalid, got %v", i, err)
		}
	}
	err := env.engine.ConfirmContactVerification(ctx, "alice", env.out.last(t).Code)
	if !errors.Is(err, authcore.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts with the right code, got %v", err)
	}
	if _, ok := authcore.RetryAfter(err); !ok {
		t.Fatal("lockout error must carry retry timing")
	}

	// Login lockout is a separate namespace.
	env.login(t, "alice")

	env.clock.Advance(15 * time.Minute)
	if err := env.engine.RequestContactVerification(ctx, "alice"); err != nil {
		t.Fatalf("RequestContactVerification: %v", err)
	}
	if err := env.engine.ConfirmContactVerification(ctx, "alice", env.out.last(t).Code); err != nil {
		t.Fatalf("a fresh code should verify after the lock expires, got %v", err)
	}
}

func TestDeliveryFailureDiscardsCode(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	ctx := context.Background()

	_ = env.engine.RequestContactVerification(ctx, "alice")
	code := env.out.last(t).Code

	env.out.setFail(true)
	err := env.engine.RequestContactVerification(ctx, "alice")
	if !errors.Is(err, authcore.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if status, _ := authcore.PublicError(err); status != 503 {
		t.Fatalf("status = %d, want 503", status)
	}
	if err := env.engine.ConfirmContactVerification(ctx, "alice", code); !errors.Is(err, authcore.ErrCodeInvalid) {
		t.Fatalf("no code should remain after a failed delivery, got %v", err)
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	ctx := context.Background()
	const newPassword = "Brand-New-Lantern-77"

	if err := env.engine.RequestPasswordReset(ctx, "alice"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	msg := env.out.last(t)
	if !resetCodePattern.MatchString(msg.Code) || msg.Purpose != string(authcore.PurposePasswordReset) {
		t.Fatalf("unexpected reset dispatch %+v", msg)
	}

	if err := env.engine.ConfirmPasswordReset(ctx, "alice", msg.Code, "short"); !errors.Is(err, authcore.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := env.engine.ConfirmPasswordReset(ctx, "alice", msg.Code, newPassword); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}

	if _, err := env.engine.Authenticate(ctx, "alice", testPassword); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("old password should fail, got %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, "alice", newPassword); err != nil {
		t.Fatalf("new password should work, got %v", err)
	}

	err := env.engine.ConfirmPasswordReset(ctx, "alice", msg.Code, "Another-Fresh-Pass-88")
	if !errors.Is(err, authcore.ErrCodeAlreadyUsed) {
		t.Fatalf("expected replay to fail as ErrCodeAlreadyUsed, got %v", err)
	}
}

func TestPasswordResetRequestIsEnumerationSafe(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	ctx := context.Background()

	if err := env.engine.RequestPasswordReset(ctx, "nobody"); err != nil {
		t.Fatalf("unknown username must not error, got %v", err)
	}
	if env.out.count() != 0 {
		t.Fatal("nothing should be dispatched for an unknown username")
	}

	env.out.setFail(true)
	if err := env.engine.RequestPasswordReset(ctx, "alice"); err != nil {
		t.Fatalf("delivery failure must not surface, got %v", err)
	}

	if err := env.engine.ConfirmPasswordReset(ctx, "nobody", "ABCDEFGH", "Brand-New-Lantern-77"); !errors.Is(err, authcore.ErrCodeInvalid) {
		t.Fatalf("unknown username should fail like a wrong code, got %v", err)
	}
}

func TestPasswordResetDelayIsApplied(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnumerationDelayMin = 20 * time.Millisecond
	cfg.Security.EnumerationDelayMax = 40 * time.Millisecond
	env := newTestEnvWithConfig(t, cfg, nil)

	start := time.Now()
	if err := env.engine.RequestPasswordReset(context.Background(), "nobody"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected at least 20ms delay, got %v", elapsed)
	}
}

func TestPasswordResetClearsLoginLockout(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, _ = env.engine.Authenticate(ctx, "alice", "Wrong-Password-1!")
	}
	_ = env.engine.RequestPasswordReset(ctx, "alice")
	code := env.out.last(t).Code

	if err := env.engine.ConfirmPasswordReset(ctx, "alice", code, "Brand-New-Lantern-77"); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, "alice", "Brand-New-Lantern-77"); err != nil {
		t.Fatalf("reset should clear the login lockout, got %v", err)
	}
}

func TestPasswordResetConcurrentConfirmSingleWinner(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	env := newTestEnvWithConfig(t, testConfig(), func(b *authcore.Builder) {
		b.WithRedis(rdb)
	})
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	ctx := context.Background()

	_ = env.engine.RequestPasswordReset(ctx, "alice")
	code := env.out.last(t).Code

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if env.engine.ConfirmPasswordReset(ctx, "alice", code, "Brand-New-Lantern-77") == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one successful reset, got %d", got)
	}
}
