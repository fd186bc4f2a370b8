// Package otel exposes engine metrics through OpenTelemetry observable instruments.
//
// Each counter becomes an Int64ObservableCounter; each histogram bucket becomes an
// Int64ObservableGauge holding its cumulative count. One callback reads the engine
// snapshot per collection cycle. Callers own the MeterProvider.
package otel
