// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry wires OpenTelemetry tracing and metrics for the
// shiftsim CLI and simulator service.
//
// Init installs global tracer and meter providers; after it returns,
// otel.Tracer() and otel.Meter() work anywhere in the process. Traces
// go to an OTLP collector or stdout, metrics to Prometheus or stdout.
// Everything can be disabled with "none" for tests and one-shot CLI
// invocations.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	// ErrNilContext indicates a nil context was passed to Init.
	ErrNilContext = errors.New("nil context")

	// ErrUnknownExporter indicates an unrecognized exporter name.
	ErrUnknownExporter = errors.New("unrecognized exporter")
)

// Config selects exporters and names the process for traces and
// metrics. Start from DefaultConfig or CLIConfig rather than the zero
// value.
type Config struct {
	// ServiceName identifies this process in traces and metrics.
	ServiceName string `json:"service_name"`

	// ServiceVersion is the version string for this process.
	ServiceVersion string `json:"service_version"`

	// Environment names the deployment (development, production).
	Environment string `json:"environment"`

	// TraceExporter is "otlp", "stdout", or "none".
	TraceExporter string `json:"trace_exporter"`

	// MetricExporter is "prometheus", "stdout", or "none".
	MetricExporter string `json:"metric_exporter"`

	// OTLPEndpoint is the collector address traces are shipped to.
	OTLPEndpoint string `json:"otlp_endpoint"`

	// OTLPInsecure turns off TLS on the collector connection.
	OTLPInsecure bool `json:"otlp_insecure"`
}

// DefaultConfig returns the service defaults: OTLP traces, Prometheus
// metrics. SHIFTSIM_ENV, OTEL_TRACES_EXPORTER, OTEL_METRICS_EXPORTER,
// and OTEL_EXPORTER_OTLP_ENDPOINT override the matching fields.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "shiftsim",
		ServiceVersion: "1.0.0",
		Environment:    envOr("SHIFTSIM_ENV", "development"),
		TraceExporter:  envOr("OTEL_TRACES_EXPORTER", "otlp"),
		MetricExporter: envOr("OTEL_METRICS_EXPORTER", "prometheus"),
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

// CLIConfig returns a configuration suited to one-shot CLI runs:
// no exporters unless the OTEL_* environment asks for them.
func CLIConfig() Config {
	cfg := DefaultConfig()
	cfg.TraceExporter = envOr("OTEL_TRACES_EXPORTER", "none")
	cfg.MetricExporter = envOr("OTEL_METRICS_EXPORTER", "none")
	return cfg
}

// Init installs the tracer and meter providers cfg asks for. Call it
// once at startup; afterwards otel.Tracer() and otel.Meter() work
// anywhere. The returned shutdown flushes exporters and must be called
// on exit.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	var tp *trace.TracerProvider
	var mp *metric.MeterProvider

	if cfg.TraceExporter != "none" {
		exp, err := newSpanExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		tp = trace.NewTracerProvider(
			trace.WithBatcher(exp),
			trace.WithResource(res),
			trace.WithSampler(trace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricExporter != "none" {
		reader, err := newMetricReader(cfg)
		if err != nil {
			return nil, fmt.Errorf("metric exporter: %w", err)
		}
		mp = metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(reader),
		)
		otel.SetMeterProvider(mp)
	}

	shutdown := func(ctx context.Context) error {
		var traceErr, metricErr error
		if tp != nil {
			traceErr = tp.Shutdown(ctx)
		}
		if mp != nil {
			metricErr = mp.Shutdown(ctx)
		}
		return errors.Join(traceErr, metricErr)
	}
	return shutdown, nil
}

func newSpanExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	switch cfg.TraceExporter {
	case "otlp", "jaeger":
		// Jaeger ingests OTLP directly, so both names share the gRPC path.
		conn, err := dialCollector(cfg)
		if err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))

	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.TraceExporter)
	}
}

func dialCollector(cfg Config) (*grpc.ClientConn, error) {
	creds := credentials.NewTLS(nil)
	if cfg.OTLPInsecure {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial collector %s: %w", cfg.OTLPEndpoint, err)
	}
	return conn, nil
}

// The prometheus reader doubles as the exporter: it registers with the
// default prometheus registry, so promhttp.Handler() serves both otel
// instruments and any promauto metrics in the process.
func newMetricReader(cfg Config) (metric.Reader, error) {
	switch cfg.MetricExporter {
	case "prometheus":
		exp, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		setMetricsHandler(promhttp.Handler())
		return exp, nil

	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		return metric.NewPeriodicReader(exp), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.MetricExporter)
	}
}

var metricsHTTP struct {
	sync.RWMutex
	handler http.Handler
}

func setMetricsHandler(h http.Handler) {
	metricsHTTP.Lock()
	defer metricsHTTP.Unlock()
	metricsHTTP.handler = h
}

// MetricsHandler returns the /metrics HTTP handler, or nil when the
// Prometheus exporter isn't the active one.
func MetricsHandler() http.Handler {
	metricsHTTP.RLock()
	defer metricsHTTP.RUnlock()
	return metricsHTTP.handler
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
