package authcore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/authcore"
)

func TestScenarioRegisterAndVerifyPhone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice", "+15550100", authcore.RoleCustomer)
	if alice.PhoneVerified {
		t.Fatal("new identity must start unverified")
	}

	if err := env.engine.RequestContactVerification(ctx, "alice"); err != nil {
		t.Fatalf("RequestContactVerification: %v", err)
	}
	code := env.out.last(t).Code

	for i := 0; i < 3; i++ {
		err := env.engine.ConfirmContactVerification(ctx, "alice", wrongCode(code))
		if !errors.Is(err, authcore.ErrCodeInvalid) {
			t.Fatalf("wrong code %d: expected ErrCodeInvalid, got %v", i+1, err)
		}
	}

	if err := env.engine.ConfirmContactVerification(ctx, "alice", code); err != nil {
		t.Fatalf("correct code after three misses: %v", err)
	}
	stored, err := env.repo.FindByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !stored.PhoneVerified {
		t.Fatal("phone should be verified")
	}

	if err := env.engine.ConfirmContactVerification(ctx, "alice", code); !errors.Is(err, authcore.ErrCodeInvalid) {
		t.Fatalf("resubmitted code must fail as ErrCodeInvalid, got %v", err)
	}
}

func TestScenarioCustomerCannotGrantHighestRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "bob", "+15550002", authcore.RoleCustomer)
	carol := env.register(t, "carol", "+15550003", authcore.RoleCustomer)
	bobToken := env.login(t, "bob")

	_, err := env.engine.ChangeRole(ctx, bobToken, "carol", authcore.RoleChef)
	if !errors.Is(err, authcore.ErrPrivilegeAssignmentDenied) {
		t.Fatalf("expected ErrPrivilegeAssignmentDenied, got %v", err)
	}

	stored, err := env.repo.FindByID(ctx, carol.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Role != authcore.RoleCustomer {
		t.Fatalf("carol's role changed to %s", stored.Role)
	}
}
