// Package observe wires OpenTelemetry metrics and tracing for narrator.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// for scraping via a Prometheus registry owned by the Provider, so the daemon
// can mount Provider.Handler at /metrics. Tracing uses the global tracer
// provider; with telemetry.trace_stdout enabled spans are printed as JSON.
//
// Components accept a *Metrics and tolerate nil, so tests and CLI paths that
// do not care about telemetry can skip it. Tests that inspect instruments
// should build Metrics with NewMetrics over a ManualReader.
package observe
