package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
)

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by the *LockedError returned while a login key is locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrTooManyAttempts is matched by the *LockedError returned while code validation is locked.
	ErrTooManyAttempts = errors.New("too many attempts")

	// ErrCodeInvalid covers a wrong code and the absence of any code.
	ErrCodeInvalid = errors.New("invalid code")
	// ErrCodeExpired is returned once for an expired code, which is then cleared.
	ErrCodeExpired = errors.New("code expired")
	// ErrCodeAlreadyUsed reports a replayed code. It matches ErrCodeInvalid.
	ErrCodeAlreadyUsed = fmt.Errorf("%w: code already used", ErrCodeInvalid)

	// ErrDuplicateIdentity reports a username or phone number already in use.
	ErrDuplicateIdentity = errors.New("duplicate identity")
	// ErrIdentityNotFound is returned by repositories for a missing record.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityChanged is returned by a conditional repository update whose
	// precondition was invalidated by a concurrent write.
	ErrIdentityChanged = errors.New("identity changed concurrently")
	// ErrAlreadyVerified is returned when the contact channel is already verified.
	ErrAlreadyVerified = errors.New("contact already verified")
	// ErrInvalidRequest reports malformed input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrFieldNotAllowed reports an update naming a field outside the allow-list.
	ErrFieldNotAllowed = errors.New("field not allowed")
	// ErrPasswordPolicy is matched by every *password.PolicyError.
	ErrPasswordPolicy = password.ErrPolicy

	ErrInsufficientRole          = permission.ErrInsufficientRole
	ErrSelfEscalationDenied      = permission.ErrSelfEscalationDenied
	ErrPrivilegeAssignmentDenied = permission.ErrPrivilegeAssignmentDenied
	ErrHighestRoleAssignment     = permission.ErrHighestRoleAssignment
	ErrHighestRoleAccount        = permission.ErrHighestRoleAccount
	ErrUnknownRole               = permission.ErrUnknownRole

	// ErrTokenInvalid covers malformed tokens, bad signatures, and unknown subjects.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired reports a token at or past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrDeliveryFailed reports a code the dispatcher could not deliver.
	ErrDeliveryFailed = notify.ErrDeliveryFailed
	// ErrServiceUnavailable wraps repository, store, and signing failures.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError carries the wait before the next attempt is accepted. Err is
// ErrAccountLocked or ErrTooManyAttempts.
type LockedError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%v: retry after %ds", e.Err, int64(e.RetryAfter/time.Second))
}

func (e *LockedError) Unwrap() error { return e.Err }

// FieldError names the field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidRequest }

// FieldsNotAllowedError lists the rejected keys of an update.
type FieldsNotAllowedError struct {
	Fields []string
}

func (e *FieldsNotAllowedError) Error() string {
	return "fields not allowed: " + strings.Join(e.Fields, ", ")
}

func (e *FieldsNotAllowedError) Unwrap() error { return ErrFieldNotAllowed }

func newFieldsNotAllowedError(fields []string) error {
	out := append([]string(nil), fields...)
	sort.Strings(out)
	return &FieldsNotAllowedError{Fields: out}
}

/*
====================================
PUBLIC ERROR SHAPING
====================================
*/

// Generic messages returned to callers.
const (
	MsgInvalidCredentials = "Invalid username or password"
	MsgInvalidCode        = "Invalid code"
	MsgCodeExpired        = "Code has expired. Please request a new one."
	MsgRegistrationFailed = "Registration failed. Please check your information."
	MsgInvalidRequest     = "Invalid request"
	MsgForbidden          = "You do not have permission to perform this action"
	MsgUnauthorized       = "Could not validate credentials"
	MsgTooManyAttempts    = "Too many attempts. Try again later."
	MsgUnavailable        = "Service temporarily unavailable"
	MsgInternal           = "Internal server error"
)

// PublicError maps err to the status code and message a caller may see.
// Enumeration-prone errors share one message per family; lockouts keep
// their retry timing through RetryAfter. No internal detail is returned.
func PublicError(err error) (int, string) {
	var (
		locked *LockedError
		field  *FieldError
		policy *password.PolicyError
		extra  *FieldsNotAllowedError
	)

	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &locked):
		return http.StatusTooManyRequests, MsgTooManyAttempts
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, MsgInvalidCredentials
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized, MsgUnauthorized
	case errors.Is(err, ErrCodeInvalid):
		return http.StatusBadRequest, MsgInvalidCode
	case errors.Is(err, ErrCodeExpired):
		return http.StatusBadRequest, MsgCodeExpired
	case errors.Is(err, ErrDuplicateIdentity):
		return http.StatusBadRequest, MsgRegistrationFailed
	case errors.As(err, &policy):
		return http.StatusBadRequest, "Password does not meet requirements: " + strings.Join(policy.Violations, ", ")
	case errors.As(err, &extra):
		return http.StatusBadRequest, "Fields not allowed: " + strings.Join(extra.Fields, ", ")
	case errors.As(err, &field):
		return http.StatusBadRequest, "Invalid " + field.Field
	case errors.Is(err, ErrAlreadyVerified):
		return http.StatusBadRequest, "Phone number is already verified"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownRole):
		return http.StatusBadRequest, MsgInvalidRequest
	case errors.Is(err, ErrSelfEscalationDenied):
		return http.StatusForbidden, "You cannot change your own role"
	case errors.Is(err, ErrPrivilegeAssignmentDenied), errors.Is(err, ErrInsufficientRole):
		return http.StatusForbidden, MsgForbidden
	case errors.Is(err, ErrIdentityNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, ErrIdentityChanged):
		return http.StatusConflict, "Account changed. Try again."
	case errors.Is(err, ErrDeliveryFailed):
		return http.StatusServiceUnavailable, "Could not send code. Try again later."
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, MsgUnavailable
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}

// RetryAfter returns the wait carried by a *LockedError in err.
func RetryAfter(err error) (time.Duration, bool) {
	var locked *LockedError
	if errors.As(err, &locked) {
		return locked.RetryAfter, true
	}
	return 0, false
}
