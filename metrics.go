package sentinel

import "sync/atomic"

// MetricID indexes the in-process counters. Values are contiguous so the
// counter table is a flat array.
type MetricID int

const (
	MetricRegister MetricID = iota
	MetricLoginSuccess
	MetricLoginFailure
	MetricRateLimited
	MetricRefreshSuccess
	MetricTokenReuse
	MetricLogout
	MetricAuthorizeDenied
	MetricRoleChange
	MetricAnomalyAlert
	MetricLimiterFallback
	MetricLedgerDegraded

	metricCount
)

var metricNames = [metricCount]string{
	MetricRegister:        "register_total",
	MetricLoginSuccess:    "login_success_total",
	MetricLoginFailure:    "login_failure_total",
	MetricRateLimited:     "rate_limited_total",
	MetricRefreshSuccess:  "refresh_success_total",
	MetricTokenReuse:      "token_reuse_total",
	MetricLogout:          "logout_total",
	MetricAuthorizeDenied: "authorize_denied_total",
	MetricRoleChange:      "role_change_total",
	MetricAnomalyAlert:    "anomaly_alert_total",
	MetricLimiterFallback: "limiter_fallback_total",
	MetricLedgerDegraded:  "ledger_degraded_total",
}

// Name returns the stable snapshot key for the metric.
func (id MetricID) Name() string {
	if id < 0 || id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// paddedCounter keeps each counter on its own cache line so hot counters do
// not false-share under concurrent logins.
type paddedCounter struct {
	value atomic.Uint64
	_     [56]byte
}

// Metrics is the fixed table of engine counters. The zero value is unusable;
// a nil *Metrics is a valid no-op sink, which is how a disabled metrics
// config is represented.
type Metrics struct {
	counters [metricCount]paddedCounter
}

// NewMetrics returns an empty counter table.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc adds one to the counter. Nil-safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id < 0 || id >= metricCount {
		return
	}
	m.counters[id].value.Add(1)
}

// Get reads a single counter. Nil-safe.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || id < 0 || id >= metricCount {
		return 0
	}
	return m.counters[id].value.Load()
}

// Snapshot copies every counter into a map keyed by metric name. Each
// counter load is individually atomic; the snapshot as a whole is not a
// consistent cut, which is fine for monitoring.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, metricCount)
	if m == nil {
		return out
	}
	for id := MetricID(0); id < metricCount; id++ {
		out[metricNames[id]] = m.counters[id].value.Load()
	}
	return out
}
