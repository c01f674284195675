package flows

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"

	"github.com/MrEthical07/authcore/internal/validate"
	"github.com/MrEthical07/authcore/permission"
)

// Profile fields a caller may change on its own identity.
const (
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldPhoneNumber = "phone_number"
)

var profileFields = []string{FieldFirstName, FieldLastName, FieldPhoneNumber}

// RegisterInput is validated after normalization.
type RegisterInput struct {
	Username    string `json:"username" validate:"required,min=3,max=150,username"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name" validate:"max=150,nocontrol"`
	LastName    string `json:"last_name" validate:"max=150,nocontrol"`
	PhoneNumber string `json:"phone_number" validate:"required,e164"`
}

// Rules applied to single profile fields.
const (
	nameRule  = "max=150,nocontrol"
	phoneRule = "required,e164"
)

type RegisterMetrics struct {
	RegisterSuccess   int
	RegisterDuplicate int
	RegisterRejected  int
}

type RegisterEvents struct {
	RegisterSuccess   string
	RegisterFailure   string
	RegisterDuplicate string
}

type AccountErrors struct {
	EngineNotReady   error
	InvalidRequest   error
	Duplicate        error
	IdentityNotFound error
	InvalidField     func(field, rule string) error
	FieldsNotAllowed func(fields []string) error
}

type RegisterDeps struct {
	Common

	DefaultRole permission.Role

	NewID        func() string
	CheckPolicy  func(string) error
	HashPassword func(string) (string, error)
	Create       func(context.Context, Account) error
	IsDuplicate  func(error) bool

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  AccountErrors
}

// RunRegister validates input, applies the password policy, hashes, and
// creates the account with an unverified phone. The repository enforces
// uniqueness; any conflict is reported as the single Duplicate error.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) (Account, error) {
	normalizeCommon(&deps.Common)

	if deps.NewID == nil || deps.HashPassword == nil || deps.Create == nil {
		return Account{}, deps.Errors.EngineNotReady
	}

	in.Username = NormalizeUsername(in.Username)
	in.PhoneNumber = NormalizePhone(in.PhoneNumber)
	username, phone := in.Username, in.PhoneNumber

	reject := func(err error, reason string) (Account, error) {
		deps.MetricInc(deps.Metrics.RegisterRejected)
		deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, "", username, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return Account{}, err
	}

	if err := validate.Struct(in); err != nil {
		return reject(invalidField(deps.Errors, err), invalidReason(err))
	}
	if deps.CheckPolicy != nil {
		if err := deps.CheckPolicy(in.Password); err != nil {
			return reject(err, "password_policy")
		}
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return Account{}, deps.WrapBackend(err)
	}

	now := deps.Now()
	acct := Account{
		ID:           deps.NewID(),
		Username:     username,
		PasswordHash: hash,
		Role:         deps.DefaultRole,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PhoneNumber:  phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := deps.Create(ctx, acct); err != nil {
		if deps.IsDuplicate != nil && deps.IsDuplicate(err) {
			deps.MetricInc(deps.Metrics.RegisterDuplicate)
			deps.EmitAudit(ctx, deps.Events.RegisterDuplicate, false, "", username, deps.Errors.Duplicate, nil)
			return Account{}, deps.Errors.Duplicate
		}
		return Account{}, deps.WrapBackend(err)
	}

	deps.MetricInc(deps.Metrics.RegisterSuccess)
	deps.EmitAudit(ctx, deps.Events.RegisterSuccess, true, acct.ID, username, nil, nil)
	return acct, nil
}

type ProfileMetrics struct {
	ProfileUpdated  int
	ProfileRejected int
}

type ProfileEvents struct {
	ProfileUpdated  string
	ProfileRejected string
}

type ProfileDeps struct {
	Common

	FindByID      func(context.Context, string) (Account, error)
	FindByContact func(context.Context, string) (Account, error)
	// UpdateProfile writes only the named columns and returns the stored
	// account. A new phone number is stored unverified in the same write.
	UpdateProfile func(ctx context.Context, identityID string, changes ProfileChanges) (Account, error)
	IsDuplicate   func(error) bool

	// Allow decides whether role may update its own profile.
	Allow func(permission.Role) error
	// DiscardPhoneCode drops any pending phone verification code.
	DiscardPhoneCode func(ctx context.Context, identityID string) error

	Metrics ProfileMetrics
	Events  ProfileEvents
	Errors  AccountErrors
}

// RunUpdateProfile applies fields to the caller's own identity. Every key
// must be in the allow-list and every value must validate before the
// identity is loaded; nothing is written on any rejection. A phone change
// clears the verified flag and any pending verification code.
func RunUpdateProfile(ctx context.Context, identityID string, fields map[string]string, deps ProfileDeps) (Account, error) {
	normalizeCommon(&deps.Common)

	if deps.FindByID == nil || deps.UpdateProfile == nil {
		return Account{}, deps.Errors.EngineNotReady
	}

	reject := func(err error, reason string) (Account, error) {
		deps.MetricInc(deps.Metrics.ProfileRejected)
		deps.EmitAudit(ctx, deps.Events.ProfileRejected, false, identityID, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return Account{}, err
	}

	if len(fields) == 0 {
		return reject(deps.Errors.InvalidRequest, "empty_update")
	}

	var disallowed []string
	for k := range fields {
		if !slices.Contains(profileFields, k) {
			disallowed = append(disallowed, k)
		}
	}
	if len(disallowed) > 0 {
		sort.Strings(disallowed)
		err := deps.Errors.InvalidRequest
		if deps.Errors.FieldsNotAllowed != nil {
			err = deps.Errors.FieldsNotAllowed(disallowed)
		}
		return reject(err, "field_not_allowed")
	}

	var changes ProfileChanges
	for _, f := range []string{FieldFirstName, FieldLastName} {
		v, ok := fields[f]
		if !ok {
			continue
		}
		if err := validate.Var(f, v, nameRule); err != nil {
			return reject(invalidField(deps.Errors, err), invalidReason(err))
		}
		if f == FieldFirstName {
			changes.FirstName = &v
		} else {
			changes.LastName = &v
		}
	}
	phone, phoneChange := fields[FieldPhoneNumber]
	if phoneChange {
		phone = NormalizePhone(phone)
		if err := validate.Var(FieldPhoneNumber, phone, phoneRule); err != nil {
			return reject(invalidField(deps.Errors, err), invalidReason(err))
		}
		changes.PhoneNumber = &phone
	}

	acct, err := deps.FindByID(ctx, identityID)
	if err != nil {
		if deps.IsNotFound(err) {
			return Account{}, deps.Errors.IdentityNotFound
		}
		return Account{}, deps.WrapBackend(err)
	}

	if deps.Allow != nil {
		if err := deps.Allow(acct.Role); err != nil {
			return reject(err, "not_permitted")
		}
	}

	phoneChanged := phoneChange && phone != acct.PhoneNumber
	if phoneChanged && deps.FindByContact != nil {
		other, err := deps.FindByContact(ctx, phone)
		switch {
		case err == nil && other.ID != acct.ID:
			return reject(deps.Errors.Duplicate, "phone_in_use")
		case err != nil && !deps.IsNotFound(err):
			return Account{}, deps.WrapBackend(err)
		}
	}

	next, err := deps.UpdateProfile(ctx, acct.ID, changes)
	if err != nil {
		switch {
		case deps.IsDuplicate != nil && deps.IsDuplicate(err):
			return reject(deps.Errors.Duplicate, "phone_in_use")
		case deps.IsNotFound(err):
			return Account{}, deps.Errors.IdentityNotFound
		}
		return Account{}, deps.WrapBackend(err)
	}

	if phoneChanged && deps.DiscardPhoneCode != nil {
		if err := deps.DiscardPhoneCode(ctx, acct.ID); err != nil {
			deps.Warn(ctx, "discard pending phone code failed", err)
		}
	}

	deps.MetricInc(deps.Metrics.ProfileUpdated)
	deps.EmitAudit(ctx, deps.Events.ProfileUpdated, true, acct.ID, acct.Username, nil, func() map[string]string {
		changed := make([]string, 0, len(fields))
		for k := range fields {
			changed = append(changed, k)
		}
		sort.Strings(changed)
		meta := map[string]string{"fields": strings.Join(changed, ",")}
		if phoneChanged {
			meta["phone_reverification"] = "true"
		}
		return meta
	})
	return next, nil
}

func invalidField(errs AccountErrors, err error) error {
	var ve *validate.Error
	if errors.As(err, &ve) && errs.InvalidField != nil {
		return errs.InvalidField(ve.Field, ve.Rule)
	}
	if errs.InvalidRequest != nil {
		return errs.InvalidRequest
	}
	return err
}

func invalidReason(err error) string {
	var ve *validate.Error
	if errors.As(err, &ve) {
		return "invalid_" + ve.Field
	}
	return "invalid_input"
}
