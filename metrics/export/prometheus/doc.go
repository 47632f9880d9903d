// Package prometheus renders goSSO metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] reads a [goSSO.Client] and exposes an [http.Handler].
// Counters are named gosso_*_total; the single histogram is
// gosso_conversion_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus
