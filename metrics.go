package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies an engine counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that ended with an issued session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts assertions rejected by the identity provider.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins refused by the failed-login throttle.
	MetricLoginRateLimited
	// MetricLoginUpstreamFailure counts logins that could not reach the identity provider.
	MetricLoginUpstreamFailure
	// MetricIssueSuccess counts sessions written to the credential store.
	MetricIssueSuccess
	// MetricIssueFailure counts issuance attempts that did not produce a session.
	MetricIssueFailure
	// MetricProfileCreated counts first-login profile provisions.
	MetricProfileCreated
	// MetricValidateSuccess counts accepted credentials.
	MetricValidateSuccess
	// MetricValidateCacheHit counts credentials confirmed by the local cache.
	MetricValidateCacheHit
	// MetricValidateCacheMiss counts credentials confirmed by the credential store.
	MetricValidateCacheMiss
	// MetricValidateMalformed counts credentials that failed decoding or signature checks.
	MetricValidateMalformed
	// MetricValidateExpired counts validly signed credentials past their deadline.
	MetricValidateExpired
	// MetricValidateRevoked counts valid credentials with no matching session.
	MetricValidateRevoked
	// MetricValidateUpstream counts validations the credential store could not answer.
	MetricValidateUpstream
	// MetricRevokeSuccess counts logouts that removed a session record.
	MetricRevokeSuccess
	// MetricRevokeNoop counts logouts that had nothing to remove.
	MetricRevokeNoop
	// MetricRevokeFailure counts logouts the credential store could not serve.
	MetricRevokeFailure
	// MetricForcedSignout counts RevokeIdentity calls.
	MetricForcedSignout
	// MetricValidateLatency is the Validate latency histogram.
	MetricValidateLatency
	metricIDCount
)

// latencyBoundsMs are the inclusive upper bounds of the validate latency
// buckets. One overflow bucket follows the last bound.
var latencyBoundsMs = [...]int64{5, 10, 25, 50, 100, 250, 500}

const latencyBucketCount = len(latencyBoundsMs) + 1

// slot keeps each counter on its own cache line so hot Validate counters do
// not contend.
type slot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free engine counters. A nil or disabled Metrics is a
// valid no-op.
type Metrics struct {
	enabled bool
	latency bool
	slots   [metricIDCount]slot
	buckets [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
// Histogram buckets are non-cumulative and bounded at 5, 10, 25, 50, 100,
// 250 and 500 milliseconds plus an overflow bucket.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a metrics set from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the validate latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.slots[id].n.Add(1)
}

// Observe records d in the histogram for id. Only MetricValidateLatency has
// a histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricValidateLatency || !m.LatencyEnabled() {
		return
	}
	m.buckets[latencyBucket(d)].Add(1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

// Snapshot copies every counter, and the latency histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}

	for id := range MetricValidateLatency {
		snap.Counters[id] = m.slots[id].n.Load()
	}
	if m.latency {
		hist := make([]uint64, latencyBucketCount)
		for i := range hist {
			hist[i] = m.buckets[i].Load()
		}
		snap.Histograms[MetricValidateLatency] = hist
	}
	return snap
}

func latencyBucket(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range latencyBoundsMs {
		if ms <= bound {
			return i
		}
	}
	return len(latencyBoundsMs)
}
