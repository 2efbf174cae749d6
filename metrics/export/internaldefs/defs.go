package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Logins that ended with an issued session."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Assertions rejected by the identity provider."},
	{ID: goSession.MetricLoginRateLimited, Name: "gosession_login_rate_limited_total", Help: "Logins refused by the failed-login throttle."},
	{ID: goSession.MetricLoginUpstreamFailure, Name: "gosession_login_upstream_failure_total", Help: "Logins that could not reach the identity provider."},
	{ID: goSession.MetricIssueSuccess, Name: "gosession_issue_success_total", Help: "Sessions written to the credential store."},
	{ID: goSession.MetricIssueFailure, Name: "gosession_issue_failure_total", Help: "Issuance attempts that did not produce a session."},
	{ID: goSession.MetricProfileCreated, Name: "gosession_profile_created_total", Help: "First-login profile provisions."},
	{ID: goSession.MetricValidateSuccess, Name: "gosession_validate_success_total", Help: "Accepted credentials."},
	{ID: goSession.MetricValidateCacheHit, Name: "gosession_validate_cache_hit_total", Help: "Credentials confirmed by the local cache."},
	{ID: goSession.MetricValidateCacheMiss, Name: "gosession_validate_cache_miss_total", Help: "Credentials confirmed by the credential store."},
	{ID: goSession.MetricValidateMalformed, Name: "gosession_validate_malformed_total", Help: "Credentials that failed decoding or signature checks."},
	{ID: goSession.MetricValidateExpired, Name: "gosession_validate_expired_total", Help: "Validly signed credentials past their deadline."},
	{ID: goSession.MetricValidateRevoked, Name: "gosession_validate_revoked_total", Help: "Valid credentials with no matching session."},
	{ID: goSession.MetricValidateUpstream, Name: "gosession_validate_upstream_failure_total", Help: "Validations the credential store could not answer."},
	{ID: goSession.MetricRevokeSuccess, Name: "gosession_revoke_success_total", Help: "Logouts that removed a session record."},
	{ID: goSession.MetricRevokeNoop, Name: "gosession_revoke_noop_total", Help: "Logouts with nothing to remove."},
	{ID: goSession.MetricRevokeFailure, Name: "gosession_revoke_failure_total", Help: "Logouts the credential store could not serve."},
	{ID: goSession.MetricForcedSignout, Name: "gosession_forced_signout_total", Help: "Administrative sign-outs."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricValidateLatency, Name: "gosession_validate_latency_seconds", Help: "Validate latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// engine bucket is the +Inf overflow.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket in exporters without labels.
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

// NormalizeBuckets pads or truncates raw to the engine's eight buckets.
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
