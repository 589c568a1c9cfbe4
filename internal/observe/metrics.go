package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "narrator"

// Metrics holds the instruments recorded by the pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// SynthDuration tracks one remote synthesis call, successful or not.
	SynthDuration metric.Float64Histogram
	// SynthAttempts counts synthesis attempts by outcome.
	SynthAttempts metric.Int64Counter
	// SegmentsWritten counts segments and clips committed to disk.
	SegmentsWritten metric.Int64Counter
	// MergeDuration tracks merges by kind.
	MergeDuration metric.Float64Histogram
	// Merges counts merges by kind and outcome.
	Merges metric.Int64Counter
	// WordTasks counts finished word task attempts by outcome.
	WordTasks metric.Int64Counter
	// ActiveSessions tracks sessions with dispatched synthesis in flight.
	ActiveSessions metric.Int64UpDownCounter
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthDuration, err = m.Float64Histogram("narrator.synth.duration",
		metric.WithDescription("Latency of one speech synthesis call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthAttempts, err = m.Int64Counter("narrator.synth.attempts",
		metric.WithDescription("Speech synthesis attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsWritten, err = m.Int64Counter("narrator.synth.files_written",
		metric.WithDescription("Audio files committed by the synthesis worker."),
	); err != nil {
		return nil, err
	}
	if met.MergeDuration, err = m.Float64Histogram("narrator.merge.duration",
		metric.WithDescription("Latency of merging a session into one artifact."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Merges, err = m.Int64Counter("narrator.merge.total",
		metric.WithDescription("Merges by kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.WordTasks, err = m.Int64Counter("narrator.word_tasks.total",
		metric.WithDescription("Word task attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("narrator.sessions.active",
		metric.WithDescription("Sessions with synthesis in flight."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("narrator.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// NopMetrics returns instruments backed by a no-op provider.
func NopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		return nil
	}
	return m
}

// RecordSynthAttempt records one remote call and its outcome
// ("ok", "empty", "transient", "rejected", "error").
func (m *Metrics) RecordSynthAttempt(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.SynthAttempts.Add(ctx, 1, attrs)
	m.SynthDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordFileWritten counts a committed segment or clip.
func (m *Metrics) RecordFileWritten(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.SegmentsWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordMerge records a merge outcome.
func (m *Metrics) RecordMerge(ctx context.Context, kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	m.Merges.Add(ctx, 1, attrs)
	m.MergeDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordWordTask counts a word task attempt outcome
// ("completed", "retry", "exhausted").
func (m *Metrics) RecordWordTask(ctx context.Context, category, outcome string) {
	if m == nil {
		return
	}
	m.WordTasks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("outcome", outcome),
	))
}

// SessionStarted and SessionFinished bracket a dispatched session.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionFinished(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
