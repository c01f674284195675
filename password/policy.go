package password

import (
	"errors"
	"strings"
	"unicode"
)

// ErrPolicy is the sentinel every *PolicyError unwraps to.
var ErrPolicy = errors.New("password does not meet policy")

// Rule names reported in PolicyError.Violations.
const (
	RuleMinLength = "min_length"
	RuleMaxLength = "max_length"
	RuleUpper     = "uppercase"
	RuleLower     = "lowercase"
	RuleDigit     = "digit"
	RuleSpecial   = "special"
	RuleCommon    = "common"
)

// PolicyError lists every rule a candidate password failed.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return ErrPolicy.Error() + ": " + strings.Join(e.Violations, ", ")
}

func (e *PolicyError) Unwrap() error { return ErrPolicy }

// Policy describes password strength requirements.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	RejectCommon   bool
}

// DefaultPolicy requires 12+ characters drawn from all four classes and
// rejects well-known passwords.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      12,
		MaxLength:      256,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
		RejectCommon:   true,
	}
}

// Check returns nil when plaintext satisfies p, or a *PolicyError naming
// each violated rule.
func (p Policy) Check(plaintext string) error {
	var violations []string

	n := len([]rune(plaintext))
	if p.MinLength > 0 && n < p.MinLength {
		violations = append(violations, RuleMinLength)
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		violations = append(violations, RuleMaxLength)
	}

	var upper, lower, digit, special bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if p.RequireUpper && !upper {
		violations = append(violations, RuleUpper)
	}
	if p.RequireLower && !lower {
		violations = append(violations, RuleLower)
	}
	if p.RequireDigit && !digit {
		violations = append(violations, RuleDigit)
	}
	if p.RequireSpecial && !special {
		violations = append(violations, RuleSpecial)
	}
	if p.RejectCommon && IsCommon(plaintext) {
		violations = append(violations, RuleCommon)
	}

	if len(violations) == 0 {
		return nil
	}
	return &PolicyError{Violations: violations}
}

// IsCommon reports whether plaintext, case-folded, is on the built-in list
// of frequently breached passwords.
func IsCommon(plaintext string) bool {
	_, ok := commonPasswords[strings.ToLower(plaintext)]
	return ok
}

var commonPasswords = map[string]struct{}{
	"password":       {},
	"password1":      {},
	"password123":    {},
	"password123!":   {},
	"password1234":   {},
	"passw0rd":       {},
	"p@ssw0rd":       {},
	"p@ssword123":    {},
	"p@ssw0rd123!":   {},
	"123456":         {},
	"12345678":       {},
	"123456789":      {},
	"1234567890":     {},
	"123456789012":   {},
	"qwerty":         {},
	"qwerty123":      {},
	"qwerty123456":   {},
	"qwertyuiop":     {},
	"qwertyuiop123":  {},
	"abc123":         {},
	"letmein":        {},
	"letmein123!":    {},
	"welcome":        {},
	"welcome123":     {},
	"welcome@123":    {},
	"admin":          {},
	"admin123":       {},
	"admin@123":      {},
	"administrator":  {},
	"iloveyou":       {},
	"monkey":         {},
	"dragon":         {},
	"football":       {},
	"baseball":       {},
	"sunshine":       {},
	"princess":       {},
	"trustno1":       {},
	"changeme":       {},
	"changeme123!":   {},
	"superman":       {},
	"restaurant":     {},
	"restaurant123!": {},
	"chef":           {},
	"chef123":        {},
}
