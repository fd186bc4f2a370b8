// Package prometheus renders engine metrics in the Prometheus text exposition format.
//
// Callers mount [Exporter.Handler]; nothing is registered globally.
package prometheus
