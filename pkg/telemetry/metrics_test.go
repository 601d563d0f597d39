// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestNewMetrics(t *testing.T) {
	// A real prometheus meter so instrument creation goes end to end.
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer shutdown(context.Background())

	m, err := NewMetrics(otel.Meter("test_metrics"))
	require.NoError(t, err)

	// Every field in the bundle must come back non-nil.
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.HTTPRequestDuration)
	assert.NotNil(t, m.HTTPActiveRequests)
	assert.NotNil(t, m.SimulationsTotal)
	assert.NotNil(t, m.SimulationDuration)
	assert.NotNil(t, m.RecordsScored)
	assert.NotNil(t, m.ShiftAdoptions)
	assert.NotNil(t, m.SweepJobsTotal)
	assert.NotNil(t, m.SweepQueueDepth)
	assert.NotNil(t, m.ErrorsTotal)

	// Record something on each instrument type to confirm usability
	ctx := context.Background()
	m.SimulationsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", "ok")))
	m.SimulationDuration.Record(ctx, 0.25)
	m.ShiftAdoptions.Add(ctx, 1520.5,
		metric.WithAttributes(attribute.String("earner", "primary")))
	m.SweepQueueDepth.Add(ctx, 1)
	m.SweepQueueDepth.Add(ctx, -1)
	m.RecordHTTPRequest(ctx, 0.01,
		attribute.String("method", "POST"), attribute.Int("status", 200))

	// The prometheus handler should be installed and serving
	handler := MetricsHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
}

func TestRecordHTTPRequest_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.RecordHTTPRequest(context.Background(), 0.1) })
}
