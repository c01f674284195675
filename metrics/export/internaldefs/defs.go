package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful authentications."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Rejected credentials."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Login attempts refused by lockout."},
	{ID: authcore.MetricPasswordRehash, Name: "authcore_password_rehash_total", Help: "Password hashes upgraded on login."},
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Identities registered."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authcore.MetricRegisterRejected, Name: "authcore_register_rejected_total", Help: "Registrations failing validation or password policy."},
	{ID: authcore.MetricProfileUpdated, Name: "authcore_profile_updated_total", Help: "Profile updates applied."},
	{ID: authcore.MetricProfileRejected, Name: "authcore_profile_rejected_total", Help: "Profile updates rejected."},
	{ID: authcore.MetricVerificationRequest, Name: "authcore_verification_request_total", Help: "Contact verification codes requested."},
	{ID: authcore.MetricVerificationSuccess, Name: "authcore_verification_success_total", Help: "Contacts verified."},
	{ID: authcore.MetricVerificationFailure, Name: "authcore_verification_failure_total", Help: "Failed contact verifications."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests, including unknown contacts."},
	{ID: authcore.MetricPasswordResetConfirmSuccess, Name: "authcore_password_reset_confirm_success_total", Help: "Passwords reset."},
	{ID: authcore.MetricPasswordResetConfirmFailure, Name: "authcore_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: authcore.MetricCodeLocked, Name: "authcore_code_locked_total", Help: "Code validations refused by lockout."},
	{ID: authcore.MetricCodeDispatchFailure, Name: "authcore_code_dispatch_failure_total", Help: "Codes the dispatcher failed to deliver."},
	{ID: authcore.MetricRoleChanged, Name: "authcore_role_changed_total", Help: "Role changes applied."},
	{ID: authcore.MetricRoleDenied, Name: "authcore_role_denied_total", Help: "Role changes denied."},
	{ID: authcore.MetricTokenInvalid, Name: "authcore_token_invalid_total", Help: "Tokens rejected as invalid."},
	{ID: authcore.MetricTokenExpired, Name: "authcore_token_expired_total", Help: "Tokens rejected as expired."},
}

// HistogramDefs lists every exported engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Token validation latency."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "authcore_audit_dropped_total"

// HistogramBounds are the upper bounds, in seconds, of every latency bucket
// except the last, which is unbounded.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
