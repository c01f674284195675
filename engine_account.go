package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/permission"
	"github.com/google/uuid"
)

// Profile fields accepted by UpdateProfile.
const (
	FieldFirstName   = flows.FieldFirstName
	FieldLastName    = flows.FieldLastName
	FieldPhoneNumber = flows.FieldPhoneNumber
)

// Register creates an identity with Account.DefaultRole and an unverified
// phone number. A username or phone already in use returns
// ErrDuplicateIdentity without saying which one.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	if e == nil || e.passwords == nil {
		return Identity{}, ErrEngineNotReady
	}

	acct, err := flows.RunRegister(ctx, flows.RegisterInput{
		Username:    in.Username,
		Password:    in.Password,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		PhoneNumber: in.PhoneNumber,
	}, e.registerFlowDeps())
	if err != nil {
		return Identity{}, err
	}
	return toIdentity(acct), nil
}

// UpdateProfile changes fields of the token holder's own identity. Keys
// outside first_name, last_name and phone_number are rejected as a whole
// with a *FieldsNotAllowedError before anything is read or written. A new
// phone number must be unused and starts unverified.
func (e *Engine) UpdateProfile(ctx context.Context, token string, fields map[string]string) (Identity, error) {
	if e == nil || e.tokens == nil {
		return Identity{}, ErrEngineNotReady
	}

	claims, err := e.ValidateToken(ctx, token)
	if err != nil {
		return Identity{}, err
	}

	acct, err := flows.RunUpdateProfile(ctx, claims.Subject, fields, e.profileFlowDeps())
	if err != nil {
		if isNotFound(err) {
			return Identity{}, ErrTokenInvalid
		}
		return Identity{}, err
	}
	return toIdentity(acct), nil
}

func (e *Engine) accountErrors() flows.AccountErrors {
	return flows.AccountErrors{
		EngineNotReady:   ErrEngineNotReady,
		InvalidRequest:   ErrInvalidRequest,
		Duplicate:        ErrDuplicateIdentity,
		IdentityNotFound: ErrIdentityNotFound,
		InvalidField: func(field, rule string) error {
			return &FieldError{Field: field, Reason: rule}
		},
		FieldsNotAllowed: newFieldsNotAllowedError,
	}
}

func (e *Engine) registerFlowDeps() flows.RegisterDeps {
	return flows.RegisterDeps{
		Common:       e.commonFlowDeps(),
		DefaultRole:  e.config.Account.DefaultRole,
		NewID:        uuid.NewString,
		CheckPolicy:  e.config.PasswordPolicy.Check,
		HashPassword: e.passwords.Hash,
		Create:       e.create,
		IsDuplicate:  isDuplicate,
		Metrics: flows.RegisterMetrics{
			RegisterSuccess:   int(MetricRegisterSuccess),
			RegisterDuplicate: int(MetricRegisterDuplicate),
			RegisterRejected:  int(MetricRegisterRejected),
		},
		Events: flows.RegisterEvents{
			RegisterSuccess:   auditEventRegisterSuccess,
			RegisterFailure:   auditEventRegisterFailure,
			RegisterDuplicate: auditEventRegisterDuplicate,
		},
		Errors: e.accountErrors(),
	}
}

func (e *Engine) profileFlowDeps() flows.ProfileDeps {
	return flows.ProfileDeps{
		Common:        e.commonFlowDeps(),
		FindByID:      e.findByID,
		FindByContact: e.findByContact,
		UpdateProfile: e.updateProfile,
		IsDuplicate:   isDuplicate,
		Allow: func(role permission.Role) error {
			return e.roles.Allow(role, permission.PermUpdateProfile)
		},
		DiscardPhoneCode: func(ctx context.Context, identityID string) error {
			return e.codes.discard(ctx, identityID, PurposePhoneVerification)
		},
		Metrics: flows.ProfileMetrics{
			ProfileUpdated:  int(MetricProfileUpdated),
			ProfileRejected: int(MetricProfileRejected),
		},
		Events: flows.ProfileEvents{
			ProfileUpdated:  auditEventProfileUpdated,
			ProfileRejected: auditEventProfileRejected,
		},
		Errors: e.accountErrors(),
	}
}
