// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the simulator's counters and histograms, all under
// the "shiftsim_" prefix. Instruments are safe for concurrent use
// once created.
type Metrics struct {
	// --- HTTP Metrics ---

	// HTTPRequestsTotal counts requests by method, path, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration is the request latency histogram, in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests is the in-flight request gauge.
	HTTPActiveRequests metric.Int64UpDownCounter

	// --- Simulation Metrics ---

	// SimulationsTotal counts scoring runs by status.
	SimulationsTotal metric.Int64Counter

	// SimulationDuration is the end-to-end run latency, in seconds.
	SimulationDuration metric.Float64Histogram

	// RecordsScored counts tax units scored across all scenarios.
	RecordsScored metric.Int64Counter

	// ShiftAdoptions accumulates the weighted count of shifting
	// adopters, tagged by earner.
	ShiftAdoptions metric.Float64Counter

	// --- Sweep Metrics ---

	// SweepJobsTotal counts sweep grid points by status.
	SweepJobsTotal metric.Int64Counter

	// SweepQueueDepth tracks grid points waiting for a worker.
	SweepQueueDepth metric.Int64UpDownCounter

	// --- Error Metrics ---

	// ErrorsTotal counts failures by type and component.
	ErrorsTotal metric.Int64Counter
}

// instrumentBuilder keeps the first creation error so NewMetrics can
// declare the whole bundle as one literal.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) fail(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create %s: %w", name, err)
	}
}

func (b *instrumentBuilder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.fail(name, err)
	return c
}

func (b *instrumentBuilder) floatCounter(name, desc string) metric.Float64Counter {
	c, err := b.meter.Float64Counter(name, metric.WithDescription(desc))
	b.fail(name, err)
	return c
}

func (b *instrumentBuilder) seconds(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	b.fail(name, err)
	return h
}

func (b *instrumentBuilder) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.fail(name, err)
	return c
}

// NewMetrics registers every instrument on meter and returns the
// bundle, failing on the first instrument the meter rejects.
//
//	meter := otel.Meter("shiftsim")
//	metrics, err := telemetry.NewMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.SimulationsTotal.Add(ctx, 1, ...)
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	b := &instrumentBuilder{meter: meter}
	m := &Metrics{
		HTTPRequestsTotal:   b.counter("shiftsim_http_requests_total", "Total HTTP requests by method, path, and status"),
		HTTPRequestDuration: b.seconds("shiftsim_http_request_duration_seconds", "HTTP request duration in seconds"),
		HTTPActiveRequests:  b.upDown("shiftsim_http_active_requests", "Currently active HTTP requests"),
		SimulationsTotal:    b.counter("shiftsim_simulations_total", "Total simulation runs by status"),
		SimulationDuration:  b.seconds("shiftsim_simulation_duration_seconds", "End-to-end simulation duration in seconds"),
		RecordsScored:       b.counter("shiftsim_records_scored_total", "Total tax units scored across all scenarios"),
		ShiftAdoptions:      b.floatCounter("shiftsim_shift_adoptions_total", "Weighted shifting adoptions by earner"),
		SweepJobsTotal:      b.counter("shiftsim_sweep_jobs_total", "Total sweep grid points by status"),
		SweepQueueDepth:     b.upDown("shiftsim_sweep_queue_depth", "Grid points waiting for a worker"),
		ErrorsTotal:         b.counter("shiftsim_errors_total", "Total errors by type and component"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordHTTPRequest is a convenience helper that records a completed
// request on both the counter and the duration histogram.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, durationSeconds float64, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(attrs...)
	m.HTTPRequestsTotal.Add(ctx, 1, opt)
	m.HTTPRequestDuration.Record(ctx, durationSeconds, opt)
}
