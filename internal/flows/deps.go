package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/permission"
)

// Account is the flow-side view of an identity record. The root package
// converts to and from its public Identity type.
type Account struct {
	ID            string
	Username      string
	PasswordHash  string
	Role          permission.Role
	FirstName     string
	LastName      string
	PhoneNumber   string
	PhoneVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProfileChanges names the profile columns an update writes. Nil fields are
// left untouched.
type ProfileChanges struct {
	FirstName   *string
	LastName    *string
	PhoneNumber *string
}

// AuditFunc emits one audit event. metadata is only evaluated when audit is
// enabled.
type AuditFunc func(ctx context.Context, event string, success bool, identityID, subject string, err error, metadata func() map[string]string)

// Common carries the helpers every flow uses.
type Common struct {
	Now         func() time.Time
	MetricInc   func(int)
	EmitAudit   AuditFunc
	ClientIP    func(context.Context) string
	IsNotFound  func(error) bool
	// IsConflict reports a conditional write lost to a concurrent one.
	IsConflict  func(error) bool
	WrapBackend func(error) error
	Warn        func(ctx context.Context, msg string, err error)
}

func normalizeCommon(c *Common) {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.MetricInc == nil {
		c.MetricInc = func(int) {}
	}
	if c.EmitAudit == nil {
		c.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if c.ClientIP == nil {
		c.ClientIP = func(context.Context) string { return "" }
	}
	if c.IsNotFound == nil {
		c.IsNotFound = func(error) bool { return false }
	}
	if c.IsConflict == nil {
		c.IsConflict = func(error) bool { return false }
	}
	if c.WrapBackend == nil {
		c.WrapBackend = func(err error) error { return err }
	}
	if c.Warn == nil {
		c.Warn = func(context.Context, string, error) {}
	}
}
