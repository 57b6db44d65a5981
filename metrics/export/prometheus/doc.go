// Package prometheus exposes taskmanager engine metrics through
// client_golang.
//
// [Collector] reads Engine.MetricsSnapshot on every scrape and emits
// taskmanager_*_total counters plus the taskmanager_authenticate_latency_seconds
// histogram. [HTTPMetrics] instruments handlers with request counts and
// latencies. Nothing here registers with the global registry; callers pass a
// Registerer.
package prometheus
