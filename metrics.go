package otpgate

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one engine counter.
type MetricID uint16

const (
	MetricSignupRequested MetricID = iota
	MetricSignupDuplicate
	MetricSignupConfirmed
	MetricSigninChallenged
	MetricSigninSuccess
	MetricSigninInvalidCredentials
	MetricSigninLocked
	MetricAccountLocked
	MetricCodeIssued
	MetricCodeResendBlocked
	MetricCodeMismatch
	MetricCodeExpired
	MetricCodeAttemptsExhausted
	MetricDeliveryFailure
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordHashUpgraded
	MetricSessionCreated
	MetricSessionInvalidated
	MetricLogout
	MetricLogoutAll
	MetricAuthorizeFailure
	MetricRateLimitHit
	// MetricAuthorizeLatency is the only histogram.
	MetricAuthorizeLatency
	metricIDCount
)

// latencyBoundsMs are the inclusive upper bounds of the first seven
// histogram buckets. The eighth bucket takes everything slower.
var latencyBoundsMs = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

const histBucketCount = 8

// counterSlot keeps each counter on its own cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters plus one latency histogram.
// A nil or disabled *Metrics ignores writes.
type Metrics struct {
	on       bool
	latency  bool
	counters [metricIDCount]counterSlot
	authz    [histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{on: cfg.Enabled, latency: cfg.Enabled && cfg.EnableLatencyHistograms}
}

func (m *Metrics) Enabled() bool { return m != nil && m.on }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) counting(id MetricID) bool {
	return m.Enabled() && id < metricIDCount && id != MetricAuthorizeLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) { m.Add(id, 1) }

// Add adds n to the counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if n == 0 || !m.counting(id) {
		return
	}
	m.counters[id].n.Add(n)
}

// Observe records d in the latency histogram. Only MetricAuthorizeLatency is
// bucketed; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricAuthorizeLatency || !m.LatencyEnabled() {
		return
	}
	ms := d.Milliseconds()
	b := 0
	for b < len(latencyBoundsMs) && ms > latencyBoundsMs[b] {
		b++
	}
	m.authz[b].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot copies every counter. Reads are individually atomic, not a
// consistent cut across counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id != MetricAuthorizeLatency {
			s.Counters[id] = m.counters[id].n.Load()
		}
	}
	if m.latency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.authz[i].Load()
		}
		s.Histograms[MetricAuthorizeLatency] = buckets
	}
	return s
}
