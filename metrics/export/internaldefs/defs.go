package internaldefs

import (
	goSSO "github.com/MrEthical07/goSSO"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goSSO.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   goSSO.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: goSSO.MetricConversionSuccess, Name: "gosso_conversion_success_total", Help: "Payloads converted into an identity."},
	{ID: goSSO.MetricConversionMalformed, Name: "gosso_conversion_malformed_total", Help: "Payloads rejected as malformed."},
	{ID: goSSO.MetricConversionMissingIdentifier, Name: "gosso_conversion_missing_identifier_total", Help: "Payloads without a usable identifier."},
	{ID: goSSO.MetricConversionTypeMismatch, Name: "gosso_conversion_type_mismatch_total", Help: "Payloads with fields of the wrong type."},
	{ID: goSSO.MetricConversionUnverified, Name: "gosso_conversion_unverified_total", Help: "Payloads that failed signature or claim verification."},
	{ID: goSSO.MetricUnknownProvider, Name: "gosso_unknown_provider_total", Help: "Requests naming an unregistered provider."},
	{ID: goSSO.MetricSessionCreated, Name: "gosso_session_created_total", Help: "Sessions created by login."},
	{ID: goSSO.MetricSessionLookup, Name: "gosso_session_lookup_total", Help: "Successful session lookups."},
	{ID: goSSO.MetricSessionMiss, Name: "gosso_session_miss_total", Help: "Lookups for missing or expired sessions."},
	{ID: goSSO.MetricLogout, Name: "gosso_logout_total", Help: "Single-session logout operations."},
	{ID: goSSO.MetricLogoutAll, Name: "gosso_logout_all_total", Help: "Logout-all operations."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: goSSO.MetricConversionLatency, Name: "gosso_conversion_latency_seconds", Help: "Identity conversion latency histogram."},
}

// HistogramBounds are the upper bounds in seconds of the eight latency buckets.
var HistogramBounds = []string{
	"0.00005",
	"0.0001",
	"0.00025",
	"0.0005",
	"0.001",
	"0.005",
	"0.025",
	"+Inf",
}

// HistogramBoundSuffix names each bucket for exporters that publish one
// series per bucket.
var HistogramBoundSuffix = []string{
	"50us",
	"100us",
	"250us",
	"500us",
	"1ms",
	"5ms",
	"25ms",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets and ignoring extra ones.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
