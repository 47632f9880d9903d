package goSSO

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricConversionSuccess counts payloads converted into an identity.
	MetricConversionSuccess MetricID = iota
	// MetricConversionMalformed counts payloads rejected as malformed.
	MetricConversionMalformed
	// MetricConversionMissingIdentifier counts payloads without a usable identifier.
	MetricConversionMissingIdentifier
	// MetricConversionTypeMismatch counts payloads with fields of the wrong type.
	MetricConversionTypeMismatch
	// MetricConversionUnverified counts payloads whose signature or claims failed verification.
	MetricConversionUnverified
	// MetricUnknownProvider counts requests naming an unregistered provider.
	MetricUnknownProvider
	// MetricSessionCreated counts sessions stored by Login.
	MetricSessionCreated
	// MetricSessionLookup counts successful Current lookups.
	MetricSessionLookup
	// MetricSessionMiss counts Current lookups for missing or expired sessions.
	MetricSessionMiss
	// MetricLogout counts single-session logouts.
	MetricLogout
	// MetricLogoutAll counts logout-all operations.
	MetricLogoutAll
	// MetricConversionLatency is the deserializer latency histogram.
	MetricConversionLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the conversion latency histogram.
// A nil or disabled Metrics ignores every write.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metric values.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.LatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only MetricConversionLatency has a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricConversionLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the histogram when enabled. A disabled
// Metrics returns empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricConversionLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricConversionLatency].buckets[i])
		}
		s.Histograms[MetricConversionLatency] = buckets
	}

	return s
}

// Bucket upper bounds: 50us, 100us, 250us, 500us, 1ms, 5ms, 25ms, +Inf.
func bucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 50:
		return 0
	case us <= 100:
		return 1
	case us <= 250:
		return 2
	case us <= 500:
		return 3
	case us <= 1000:
		return 4
	case us <= 5000:
		return 5
	case us <= 25000:
		return 6
	default:
		return 7
	}
}
