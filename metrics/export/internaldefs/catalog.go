package internaldefs

import "github.com/MrEthical07/otpgate"

// Prefix starts every exported series name.
const Prefix = "otpgate_"

// Counter names one engine counter.
type Counter struct {
	ID   otpgate.MetricID
	Name string
	Help string
}

// Histogram names one engine latency histogram.
type Histogram struct {
	ID   otpgate.MetricID
	Name string
	Help string
}

var Counters = []Counter{
	{otpgate.MetricSignupRequested, Prefix + "signup_requested_total", "Signup requests that staged a pending registration."},
	{otpgate.MetricSignupDuplicate, Prefix + "signup_duplicate_total", "Signup requests rejected for a taken email or phone."},
	{otpgate.MetricSignupConfirmed, Prefix + "signup_confirmed_total", "Accounts created by a confirmed signup code."},
	{otpgate.MetricSigninChallenged, Prefix + "signin_challenged_total", "Sign-ins whose password matched and received a code."},
	{otpgate.MetricSigninSuccess, Prefix + "signin_success_total", "Sign-ins completed with a valid code."},
	{otpgate.MetricSigninInvalidCredentials, Prefix + "signin_invalid_credentials_total", "Sign-ins rejected for unknown email or wrong password."},
	{otpgate.MetricSigninLocked, Prefix + "signin_locked_total", "Sign-ins rejected because the account is locked."},
	{otpgate.MetricAccountLocked, Prefix + "account_locked_total", "Lockouts tripped by repeated password failures."},
	{otpgate.MetricCodeIssued, Prefix + "code_issued_total", "One-time codes issued and delivered."},
	{otpgate.MetricCodeResendBlocked, Prefix + "code_resend_blocked_total", "Code requests refused by the resend cooldown."},
	{otpgate.MetricCodeMismatch, Prefix + "code_mismatch_total", "Submitted codes that did not match."},
	{otpgate.MetricCodeExpired, Prefix + "code_expired_total", "Submitted codes with no live pending record."},
	{otpgate.MetricCodeAttemptsExhausted, Prefix + "code_attempts_exhausted_total", "Pending codes discarded after the last attempt."},
	{otpgate.MetricDeliveryFailure, Prefix + "delivery_failure_total", "Secrets withdrawn because the deliverer failed."},
	{otpgate.MetricPasswordResetRequest, Prefix + "password_reset_request_total", "Password reset requests, known or unknown email."},
	{otpgate.MetricPasswordResetConfirmSuccess, Prefix + "password_reset_confirm_success_total", "Passwords changed with a reset token."},
	{otpgate.MetricPasswordResetConfirmFailure, Prefix + "password_reset_confirm_failure_total", "Rejected reset confirmations."},
	{otpgate.MetricPasswordHashUpgraded, Prefix + "password_hash_upgraded_total", "Stored password hashes rewritten with current parameters."},
	{otpgate.MetricSessionCreated, Prefix + "session_created_total", "Sessions created."},
	{otpgate.MetricSessionInvalidated, Prefix + "session_invalidated_total", "Sessions revoked by sign-out-all or password reset."},
	{otpgate.MetricLogout, Prefix + "logout_total", "Single-session sign-outs."},
	{otpgate.MetricLogoutAll, Prefix + "logout_all_total", "Sign-out-everywhere operations."},
	{otpgate.MetricAuthorizeFailure, Prefix + "authorize_failure_total", "Bearer tokens rejected by Authorize."},
	{otpgate.MetricRateLimitHit, Prefix + "rate_limit_hit_total", "Requests refused by the per-IP throttle."},
}

var Histograms = []Histogram{
	{otpgate.MetricAuthorizeLatency, Prefix + "authorize_latency_seconds", "Authorize latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = Prefix + "audit_dropped_total"

// Bounds are the upper bucket bounds in seconds; the last is +Inf. They match
// the millisecond buckets the engine fills.
var Bounds = [...]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// BoundSuffixes are Bounds made safe for instrument names.
var BoundSuffixes = [...]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// Cumulative turns per-bucket counts into running totals. raw may be short or
// nil; missing buckets count as zero.
func Cumulative(raw []uint64) [len(Bounds)]uint64 {
	var out [len(Bounds)]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
