package authcore_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
)

func TestAuthenticateIssuesValidToken(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "Alice", "+15550100", authcore.RoleCustomer)

	res, err := env.engine.Authenticate(context.Background(), "  ALICE ", testPassword)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.TokenType != "bearer" || res.ExpiresIn != int64((15*time.Minute).Seconds()) {
		t.Fatalf("unexpected token result %+v", res)
	}

	claims, err := env.engine.ValidateToken(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != alice.ID {
		t.Fatalf("subject = %q, want %q", claims.Subject, alice.ID)
	}

	me, err := env.engine.Me(context.Background(), res.AccessToken)
	if err != nil || me.Username != "alice" {
		t.Fatalf("Me = %+v, %v", me, err)
	}
	if me.PasswordHash != "" {
		t.Fatal("identity returned to callers must not carry the password hash")
	}
}

func TestAuthenticateUnknownAndWrongPasswordLookAlike(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)

	_, errUnknown := env.engine.Authenticate(context.Background(), "nobody", testPassword)
	_, errWrong := env.engine.Authenticate(context.Background(), "alice", "Wrong-Password-1!")

	if !errors.Is(errUnknown, authcore.ErrInvalidCredentials) || !errors.Is(errWrong, authcore.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("error text differs: %q vs %q", errUnknown, errWrong)
	}

	s1, m1 := authcore.PublicError(errUnknown)
	s2, m2 := authcore.PublicError(errWrong)
	if s1 != s2 || m1 != m2 {
		t.Fatalf("public errors differ: %d %q vs %d %q", s1, m1, s2, m2)
	}
}

func TestAuthenticateLocksAfterThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := env.engine.Authenticate(ctx, "alice", "Wrong-Password-1!")
		if !errors.Is(err, authcore.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := env.engine.Authenticate(ctx, "alice", testPassword)
	if !errors.Is(err, authcore.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked with the correct password, got %v", err)
	}
	retry, ok := authcore.RetryAfter(err)
	if !ok || retry != 15*time.Minute {
		t.Fatalf("RetryAfter = %v, %v; want 15m", retry, ok)
	}
	if status, _ := authcore.PublicError(err); status != 429 {
		t.Fatalf("status = %d, want 429", status)
	}

	env.clock.Advance(10 * time.Minute)
	if remaining, err := env.engine.LoginLockoutRemaining(ctx, "alice"); err != nil || remaining != 5*time.Minute {
		t.Fatalf("LoginLockoutRemaining = %v, %v", remaining, err)
	}

	env.clock.Advance(5 * time.Minute)
	if _, err := env.engine.Authenticate(ctx, "alice", testPassword); err != nil {
		t.Fatalf("expected login after lockout expiry, got %v", err)
	}
}

func TestAuthenticateSuccessResetsCounter(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = env.engine.Authenticate(ctx, "alice", "Wrong-Password-1!")
	}
	env.login(t, "alice")

	for i := 1; i <= 5; i++ {
		if _, err := env.engine.Authenticate(ctx, "alice", "Wrong-Password-1!"); !errors.Is(err, authcore.ErrInvalidCredentials) {
			t.Fatalf("attempt %d after reset: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
}

func TestAuthenticateUnknownUsernameIsCounted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = env.engine.Authenticate(ctx, "ghost", "Wrong-Password-1!")
	}
	if _, err := env.engine.Authenticate(ctx, "ghost", "Wrong-Password-1!"); !errors.Is(err, authcore.ErrAccountLocked) {
		t.Fatalf("expected unknown username to lock like a real one, got %v", err)
	}
}

func TestAuthenticateConcurrentAttemptsNeverExceedThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)

	var (
		wg       sync.WaitGroup
		rejected atomic.Int32
		locked   atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Authenticate(context.Background(), "alice", "Wrong-Password-1!")
			switch {
			case errors.Is(err, authcore.ErrInvalidCredentials):
				rejected.Add(1)
			case errors.Is(err, authcore.ErrAccountLocked):
				locked.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := rejected.Load(); got != 5 {
		t.Fatalf("expected exactly 5 evaluated attempts, got %d", got)
	}
	if got := locked.Load(); got != 15 {
		t.Fatalf("expected 15 locked attempts, got %d", got)
	}
}

func TestValidateTokenExpiryAndTampering(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	token := env.login(t, "alice")
	ctx := context.Background()

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := env.engine.ValidateToken(ctx, tampered); !errors.Is(err, authcore.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for bad signature, got %v", err)
	}
	if _, err := env.engine.ValidateToken(ctx, "not-a-token"); !errors.Is(err, authcore.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}

	env.clock.Advance(15*time.Minute - time.Second)
	if _, err := env.engine.ValidateToken(ctx, token); err != nil {
		t.Fatalf("token should be valid just before expiry, got %v", err)
	}
	env.clock.Advance(time.Second)
	if _, err := env.engine.ValidateToken(ctx, token); !errors.Is(err, authcore.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at expiry, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[authcore.MetricTokenExpired] != 1 || snap.Counters[authcore.MetricTokenInvalid] != 2 {
		t.Fatalf("unexpected token metrics %+v", snap.Counters)
	}
}

func TestAuthenticateAuditNeverCarriesSecrets(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "+15550100", authcore.RoleCustomer)

	_, _ = env.engine.Authenticate(context.Background(), "alice", "Wrong-Password-1!")
	env.login(t, "alice")

	var sawFailure, sawSuccess bool
	for _, ev := range env.drainAudit() {
		for _, v := range ev.Metadata {
			if strings.Contains(v, "Wrong-Password") || strings.Contains(v, testPassword) {
				t.Fatalf("audit event %s leaks a password", ev.EventType)
			}
		}
		switch ev.EventType {
		case "login_failure":
			sawFailure = ev.Error == "invalid_credentials" && ev.Subject == "alice"
		case "login_success":
			sawSuccess = ev.Success
		}
	}
	if !sawFailure || !sawSuccess {
		t.Fatalf("expected login_failure and login_success events (failure=%v success=%v)", sawFailure, sawSuccess)
	}
}
