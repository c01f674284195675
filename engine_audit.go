package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/logging"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginLocked          = "login_locked"
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventRegisterDuplicate    = "register_duplicate"
	auditEventProfileUpdated       = "profile_updated"
	auditEventProfileRejected      = "profile_rejected"
	auditEventVerificationRequest  = "phone_verification_request"
	auditEventVerificationConfirm  = "phone_verification_confirm"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventRoleChanged          = "role_changed"
	auditEventRoleDenied           = "role_change_denied"
)

// AuditErrorCode is the stable error label written on failed events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrTooManyAttempts    AuditErrorCode = "too_many_attempts"
	auditErrCodeInvalid        AuditErrorCode = "code_invalid"
	auditErrCodeReplay         AuditErrorCode = "code_replay"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrConflict           AuditErrorCode = "concurrent_update"
	auditErrInvalidRequest     AuditErrorCode = "invalid_request"
	auditErrFieldNotAllowed    AuditErrorCode = "field_not_allowed"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrAlreadyVerified    AuditErrorCode = "already_verified"
	auditErrSelfEscalation     AuditErrorCode = "self_escalation"
	auditErrPrivilegeDenied    AuditErrorCode = "privilege_assignment_denied"
	auditErrInsufficientRole   AuditErrorCode = "insufficient_role"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID string,
	subject string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		Subject:    logging.Sanitize(subject),
		TenantID:   tenantIDFromContext(ctx),
		IP:         clientIPFromContext(ctx),
		RequestID:  requestIDFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrTooManyAttempts):
		return auditErrTooManyAttempts
	case errors.Is(err, ErrCodeAlreadyUsed):
		return auditErrCodeReplay
	case errors.Is(err, ErrCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrDuplicateIdentity):
		return auditErrDuplicate
	case errors.Is(err, ErrIdentityChanged):
		return auditErrConflict
	case errors.Is(err, ErrFieldNotAllowed):
		return auditErrFieldNotAllowed
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownRole):
		return auditErrInvalidRequest
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrSelfEscalationDenied):
		return auditErrSelfEscalation
	case errors.Is(err, ErrPrivilegeAssignmentDenied):
		return auditErrPrivilegeDenied
	case errors.Is(err, ErrInsufficientRole):
		return auditErrInsufficientRole
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenExpired):
		return auditErrInvalidToken
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrServiceUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
