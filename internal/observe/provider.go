package observe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"narrator/internal/config"
)

// Provider owns the SDK providers created for the daemon.
type Provider struct {
	MeterProvider metric.MeterProvider
	Metrics       *Metrics
	// Handler serves the Prometheus exposition format. Nil when metrics are disabled.
	Handler http.Handler

	shutdown []func(context.Context) error
}

// ProviderOption customises Setup.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	traceWriter io.Writer
}

// WithTraceWriter redirects stdout span export.
func WithTraceWriter(w io.Writer) ProviderOption {
	return func(o *providerOptions) {
		if w != nil {
			o.traceWriter = w
		}
	}
}

// Setup initialises the meter and tracer providers described by cfg.Telemetry
// and registers them as the OpenTelemetry globals.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...ProviderOption) (*Provider, error) {
	if cfg == nil {
		return nil, errors.New("observe: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	options := providerOptions{traceWriter: os.Stdout}
	for _, opt := range opts {
		opt(&options)
	}

	name := strings.TrimSpace(cfg.Telemetry.ServiceName)
	if name == "" {
		name = "narrator"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(name)),
	)
	if err != nil {
		return nil, err
	}

	p := &Provider{}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Telemetry.TraceStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(options.traceWriter))
		if err != nil {
			return nil, err
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tp)
	p.shutdown = append(p.shutdown, tp.Shutdown)

	if cfg.Telemetry.Metrics {
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			logger.Warn("prometheus exporter unavailable; metrics disabled", slog.String("error", err.Error()))
			p.MeterProvider = noop.NewMeterProvider()
		} else {
			mp := sdkmetric.NewMeterProvider(
				sdkmetric.WithResource(res),
				sdkmetric.WithReader(exporter),
			)
			p.MeterProvider = mp
			p.Handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
			p.shutdown = append(p.shutdown, mp.Shutdown)
		}
	} else {
		p.MeterProvider = noop.NewMeterProvider()
	}
	otel.SetMeterProvider(p.MeterProvider)

	metrics, err := NewMetrics(p.MeterProvider)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	p.Metrics = metrics

	logger.Debug("telemetry initialized",
		slog.Bool("metrics", p.Handler != nil),
		slog.Bool("trace_stdout", cfg.Telemetry.TraceStdout),
	)
	return p, nil
}

// Shutdown flushes and closes the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for i := len(p.shutdown) - 1; i >= 0; i-- {
		if err := p.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	return errors.Join(errs...)
}
