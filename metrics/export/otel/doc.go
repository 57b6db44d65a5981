// Package otel bridges taskmanager engine metrics into an OpenTelemetry
// meter.
//
// [New] creates one observable counter per engine counter and cumulative
// bucket gauges for the authenticate latency histogram, all fed by a single
// callback that reads Engine.MetricsSnapshot at collection time.
package otel
