package internaldefs

import (
	taskmanager "github.com/lewadaa/task-manager"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   taskmanager.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   taskmanager.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: taskmanager.MetricLoginSuccess, Name: "taskmanager_login_success_total", Help: "Successful logins."},
	{ID: taskmanager.MetricLoginFailure, Name: "taskmanager_login_failure_total", Help: "Failed logins."},
	{ID: taskmanager.MetricLoginRateLimited, Name: "taskmanager_login_rate_limited_total", Help: "Logins refused by the failed-login throttle."},
	{ID: taskmanager.MetricSessionCreated, Name: "taskmanager_session_created_total", Help: "Sessions stored at login."},
	{ID: taskmanager.MetricRefreshSuccess, Name: "taskmanager_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: taskmanager.MetricRefreshFailure, Name: "taskmanager_refresh_failure_total", Help: "Rejected refresh requests."},
	{ID: taskmanager.MetricRefreshMismatch, Name: "taskmanager_refresh_mismatch_total", Help: "Refresh credentials that did not match the stored session."},
	{ID: taskmanager.MetricLogout, Name: "taskmanager_logout_total", Help: "Completed logouts."},
	{ID: taskmanager.MetricSessionInvalidated, Name: "taskmanager_session_invalidated_total", Help: "Sessions deleted by logout or principal removal."},
	{ID: taskmanager.MetricAuthenticateSuccess, Name: "taskmanager_authenticate_success_total", Help: "Requests authenticated."},
	{ID: taskmanager.MetricAuthenticateRejected, Name: "taskmanager_authenticate_rejected_total", Help: "Requests rejected by authentication."},
	{ID: taskmanager.MetricRevokedCredentialRejected, Name: "taskmanager_revoked_credential_rejected_total", Help: "Requests presenting a revoked access credential."},
	{ID: taskmanager.MetricSilentRenewalSuccess, Name: "taskmanager_silent_renewal_success_total", Help: "Expired access credentials renewed from the refresh cookie."},
	{ID: taskmanager.MetricSilentRenewalFailure, Name: "taskmanager_silent_renewal_failure_total", Help: "Expired access credentials that could not be renewed."},
	{ID: taskmanager.MetricStoreUnavailable, Name: "taskmanager_store_unavailable_total", Help: "Operations failed by a session, revocation or throttle backend outage."},
	{ID: taskmanager.MetricAuditDropped, Name: "taskmanager_audit_dropped_total", Help: "Audit events dropped by the dispatcher."},
}

var HistogramDefs = []HistogramDef{
	{ID: taskmanager.MetricAuthenticateLatency, Name: "taskmanager_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramBounds are the upper bounds in seconds of the first seven buckets;
// the eighth bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket in exporters without label support.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
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
