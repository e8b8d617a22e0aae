// Package otel publishes otpgate engine metrics through an OpenTelemetry
// Meter.
//
// Each engine counter becomes an Int64ObservableCounter. The authorize latency
// histogram becomes one cumulative gauge per bucket plus a count gauge. A
// single callback reads Engine.MetricsSnapshot on each collection. The caller
// owns the MeterProvider.
package otel
