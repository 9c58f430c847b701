// Package prometheus exposes authcore engine metrics through client_golang.
//
// [NewPrometheusExporter] builds a collector over [authcore.Engine.MetricsSnapshot]
// and registers it in a private registry served by Handler. Counters are named
// authcore_*_total; the single histogram is authcore_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers mount the Handler or
//     register the exporter themselves.
//   - Mutate engine state.
package prometheus
