package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful password logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected for invalid credentials."},
	{ID: authcore.MetricLoginLockedOut, Name: "authcore_login_locked_out_total", Help: "Logins refused by the attempt policy."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Logins refused by the per-IP throttle."},
	{ID: authcore.MetricLoginInactive, Name: "authcore_login_inactive_total", Help: "Correct passwords for inactive accounts."},
	{ID: authcore.MetricRememberLoginSuccess, Name: "authcore_remember_login_success_total", Help: "Sessions established from remember tokens."},
	{ID: authcore.MetricRememberLoginFailure, Name: "authcore_remember_login_failure_total", Help: "Rejected remember tokens."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricAttemptRecorded, Name: "authcore_attempt_recorded_total", Help: "Recorded failed login attempts."},
	{ID: authcore.MetricRehash, Name: "authcore_rehash_total", Help: "Password digests upgraded at login."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordChangeFailure, Name: "authcore_password_change_failure_total", Help: "Failed password changes."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Administrative password resets."},
	{ID: authcore.MetricRecoveryRequest, Name: "authcore_recovery_request_total", Help: "Issued recovery codes."},
	{ID: authcore.MetricRecoveryRateLimited, Name: "authcore_recovery_rate_limited_total", Help: "Throttled recovery requests."},
	{ID: authcore.MetricRecoveryCompleteSuccess, Name: "authcore_recovery_complete_success_total", Help: "Redeemed recovery codes."},
	{ID: authcore.MetricRecoveryCompleteFailure, Name: "authcore_recovery_complete_failure_total", Help: "Rejected recovery codes."},
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Created accounts."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authcore.MetricActivate, Name: "authcore_activate_total", Help: "Account activations."},
	{ID: authcore.MetricDeactivate, Name: "authcore_deactivate_total", Help: "Account deactivations."},
	{ID: authcore.MetricUserUpdated, Name: "authcore_user_updated_total", Help: "User updates."},
	{ID: authcore.MetricUserDeleted, Name: "authcore_user_deleted_total", Help: "User deletions."},
	{ID: authcore.MetricMembershipChange, Name: "authcore_membership_change_total", Help: "Group membership changes."},
	{ID: authcore.MetricGroupChange, Name: "authcore_group_change_total", Help: "Group creations, updates and deletions."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramUpperBounds are the bucket bounds in seconds, without +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "authcore_audit_dropped_total"

// NormalizeBuckets copies raw into a fixed eight bucket array.
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
