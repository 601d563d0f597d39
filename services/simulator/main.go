// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/ShiftSim/pkg/calc"
	"github.com/AleutianAI/ShiftSim/pkg/decile"
	"github.com/AleutianAI/ShiftSim/pkg/policy"
	"github.com/AleutianAI/ShiftSim/pkg/records"
	"github.com/AleutianAI/ShiftSim/pkg/runstore"
	"github.com/AleutianAI/ShiftSim/pkg/simulation"
	"github.com/AleutianAI/ShiftSim/pkg/telemetry"
	"github.com/AleutianAI/ShiftSim/pkg/validation"
)

const (
	NUM_WORKERS      = 4       // Number of parallel grid points per sweep request
	RATE_LIMIT_RPS   = 5       // Sustained requests per second per client
	RATE_LIMIT_BURST = 10      // Burst allowance per client
	DEFAULT_ROWS     = 10000   // Synthetic population size when the request omits rows
	MAX_ROWS         = 1000000 // Largest population a single request may score
	MAX_SWEEP_POINTS = 64      // Largest probability grid a sweep may request

	// syntheticSeed matches the CLI default so the service scores the
	// same demo sample as `shiftsim simulate` with no input file.
	syntheticSeed = 20170101

	// decileMeasurement is the InfluxDB measurement run results are
	// published under.
	decileMeasurement = "shiftsim_deciles"
)

// Server carries the scoring driver and the InfluxDB handles the
// endpoints share.
type Server struct {
	Driver   *simulation.Driver
	WriteAPI api.WriteAPIBlocking
	QueryAPI api.QueryAPI
	Limiters *clientLimiters
	Metrics  *telemetry.Metrics
}

// --- API Request/Response Structs ---

type SimulateRequest struct {
	TaxYear     int     `json:"tax_year" binding:"required"`
	MinEarnings float64 `json:"min_earnings"` // zero means no earnings floor
	MinSavings  float64 `json:"min_savings"`  // zero means no savings floor
	ShiftProb   float64 `json:"shift_prob"`
	Rows        int     `json:"rows"`    // synthetic population size, default 10000
	Seed        uint64  `json:"seed"`    // population seed, default matches the CLI
	Publish     bool    `json:"publish"` // write decile rows to InfluxDB
}

type ShiftTotals struct {
	PrimaryShifters float64 `json:"primary_shifters"`
	PrimaryAmount   float64 `json:"primary_amount"`
	SpouseShifters  float64 `json:"spouse_shifters"`
	SpouseAmount    float64 `json:"spouse_amount"`
}

type RevenueTotals struct {
	Baseline         float64 `json:"baseline"`
	ReformNoShift    float64 `json:"reform_no_shift"`
	ReformFullShift  float64 `json:"reform_full_shift"`
	ReformPartial    float64 `json:"reform_partial_shift"`
	ShiftingResponse float64 `json:"shifting_response"` // partial minus no-shift
}

type SimulateResponse struct {
	RunID     string        `json:"run_id"`
	Params    string        `json:"params"`
	Rows      int           `json:"rows"`
	Shifting  ShiftTotals   `json:"shifting"`
	Revenue   RevenueTotals `json:"revenue"`
	Published int           `json:"published_points,omitempty"`
}

type DecilePoint struct {
	Time           string  `json:"time"`
	Scenario       string  `json:"scenario"`
	Decile         string  `json:"decile"`
	Returns        float64 `json:"returns"`
	ExpandedIncome float64 `json:"expanded_income"`
	IncomeTax      float64 `json:"income_tax"`
	PayrollTax     float64 `json:"payroll_tax"`
	CombinedTax    float64 `json:"combined_tax"`
}

type ResultsResponse struct {
	RunID  string        `json:"run_id"`
	Points []DecilePoint `json:"points"`
	Count  int           `json:"count"`
}

type SweepRequest struct {
	TaxYear     int       `json:"tax_year" binding:"required"`
	MinEarnings float64   `json:"min_earnings"`
	MinSavings  float64   `json:"min_savings"`
	Probs       []float64 `json:"probs"`
	Rows        int       `json:"rows"`
	Seed        uint64    `json:"seed"`
}

type SweepPoint struct {
	ShiftProb       float64 `json:"shift_prob"`
	Revenue         float64 `json:"revenue"`        // partial-shift combined tax
	RevenueChange   float64 `json:"revenue_change"` // relative to reform without shifting
	PrimaryShifters float64 `json:"primary_shifters"`
	SpouseShifters  float64 `json:"spouse_shifters"`
	Error           string  `json:"error,omitempty"`
}

type SweepResponse struct {
	TaxYear int          `json:"tax_year"`
	Points  []SweepPoint `json:"points"`
	Count   int          `json:"count"`
}

// StreamEvent is one websocket progress message.
type StreamEvent struct {
	Event   string            `json:"event"` // accepted | population | scoring | done | error
	RunID   string            `json:"run_id,omitempty"`
	Rows    int               `json:"rows,omitempty"`
	Message string            `json:"message,omitempty"`
	Result  *SimulateResponse `json:"result,omitempty"`
}

// InfluxDB connection settings, read once at startup.
var (
	influxURL    = os.Getenv("INFLUXDB_URL")
	influxToken  = os.Getenv("INFLUXDB_TOKEN")
	influxOrg    = os.Getenv("INFLUXDB_ORG")
	influxBucket = os.Getenv("INFLUXDB_BUCKET")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Compose-stack defaults for anything the environment leaves blank.
	if influxURL == "" {
		influxURL = "http://influxdb:8086"
	}
	if influxOrg == "" {
		influxOrg = "aleutian-tax"
	}
	if influxBucket == "" {
		influxBucket = "shiftsim-runs"
	}

	policyPath := os.Getenv("SHIFTSIM_POLICY")
	if policyPath == "" {
		policyPath = "configs/policy_2017_law.yaml"
	}
	reformPath := os.Getenv("SHIFTSIM_REFORM")
	if reformPath == "" {
		reformPath = "configs/reform_2017.yaml"
	}

	baseline, err := policy.Load(policyPath)
	if err != nil {
		slog.Error("Failed to load baseline policy", "path", policyPath, "error", err)
		os.Exit(1)
	}
	reform, err := policy.LoadReform(reformPath)
	if err != nil {
		slog.Error("Failed to load reform", "path", reformPath, "error", err)
		os.Exit(1)
	}

	slog.Info("Starting ShiftSim simulator",
		"policy", policyPath,
		"reform", reformPath,
		"first_reform_year", reform.FirstYear,
		"influx_url", influxURL,
		"influx_org", influxOrg,
		"influx_bucket", influxBucket)

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = "shiftsim-simulator"
	shutdown, err := telemetry.Init(context.Background(), tcfg)
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("Telemetry shutdown failed", "error", err)
		}
	}()

	driver, err := simulation.NewDriver(calc.NewFormulaEngine(), baseline, reform, slog.Default())
	if err != nil {
		slog.Error("Failed to build simulation driver", "error", err)
		os.Exit(1)
	}

	metrics, err := telemetry.NewMetrics(otel.Meter("shiftsim-simulator"))
	if err != nil {
		slog.Error("Failed to create metrics", "error", err)
		os.Exit(1)
	}

	server := &Server{
		Driver:   driver,
		Limiters: newClientLimiters(RATE_LIMIT_RPS, RATE_LIMIT_BURST),
		Metrics:  metrics,
	}

	if influxToken == "" {
		slog.Info("INFLUXDB_TOKEN not set. Running in lightweight mode (no run publishing).")
	} else {
		influxClient := influxdb2.NewClient(influxURL, influxToken)
		defer influxClient.Close()

		// InfluxDB usually comes up after us in the compose stack.
		var influxReady bool
		slog.Info("Waiting for InfluxDB to be ready...")
		for i := 0; i < 10; i++ {
			health, err := influxClient.Health(context.Background())
			if err == nil && health.Status == "pass" {
				influxReady = true
				break
			}

			var errMsg string
			if err != nil {
				errMsg = err.Error()
			} else if health != nil && health.Message != nil {
				errMsg = *health.Message
			}
			slog.Warn("InfluxDB not ready, retrying...", "attempt", i+1, "error", errMsg)
			time.Sleep(3 * time.Second)
		}

		if !influxReady {
			slog.Error("Failed to connect to InfluxDB after all retries")
			os.Exit(1)
		}

		slog.Info("Successfully connected to InfluxDB")
		server.WriteAPI = influxClient.WriteAPIBlocking(influxOrg, influxBucket)
		server.QueryAPI = influxClient.QueryAPI(influxOrg)
	}

	// Start Gin server
	router := gin.Default()
	router.Use(otelgin.Middleware("shiftsim-simulator"))
	router.Use(requestMetrics(server.Metrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "shiftsim-simulator"})
	})
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	// Simulation endpoints
	v1 := router.Group("/api/v1", rateLimit(server.Limiters))
	v1.POST("/simulate", server.handleSimulate)
	v1.GET("/results/:run_id", server.handleResults)
	v1.POST("/sweep", server.handleSweep)
	v1.GET("/simulate/stream", server.handleStream)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8002"
	}

	slog.Info("Starting simulator API server", "port", port)
	if err := router.Run(":" + port); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// clientLimiters hands out one token bucket per client IP.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newClientLimiters(rps rate.Limit, burst int) *clientLimiters {
	return &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (cl *clientLimiters) get(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	lim, ok := cl.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(cl.rps, cl.burst)
		cl.limiters[ip] = lim
	}
	return lim
}

// rateLimit rejects clients that exceed their per-IP request budget.
func rateLimit(cl *clientLimiters) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cl.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// requestMetrics records the request counters otelgin doesn't cover.
func requestMetrics(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		start := time.Now()
		m.HTTPActiveRequests.Add(ctx, 1)
		c.Next()
		m.HTTPActiveRequests.Add(ctx, -1)
		m.RecordHTTPRequest(ctx, time.Since(start).Seconds(),
			attribute.String("method", c.Request.Method),
			attribute.String("path", c.FullPath()),
			attribute.Int("status", c.Writer.Status()),
		)
	}
}

// observeRun feeds the shared run instruments from any scoring path.
func (s *Server) observeRun(ctx context.Context, rows int, seconds float64, res *simulation.Result, err error) {
	if s.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.Metrics.SimulationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	s.Metrics.SimulationDuration.Record(ctx, seconds)
	if err != nil {
		s.Metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("component", "driver")))
		return
	}
	// Five scenarios score the full population each run.
	s.Metrics.RecordsScored.Add(ctx, int64(rows)*5)
	s.Metrics.ShiftAdoptions.Add(ctx, res.Summary.PrimaryShifters,
		metric.WithAttributes(attribute.String("earner", "primary")))
	s.Metrics.ShiftAdoptions.Add(ctx, res.Summary.SpouseShifters,
		metric.WithAttributes(attribute.String("earner", "spouse")))
}

// observeSweepJob tallies one grid point by outcome.
func (s *Server) observeSweepJob(ctx context.Context, err error) {
	if s.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.Metrics.SweepJobsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// checkPopulation applies the size defaults and caps shared by every
// scoring endpoint.
func checkPopulation(rows int, seed uint64) (int, uint64, error) {
	if rows < 0 || rows > MAX_ROWS {
		return 0, 0, fmt.Errorf("rows must be between 0 and %d, got %d", MAX_ROWS, rows)
	}
	if rows == 0 {
		rows = DEFAULT_ROWS
	}
	if seed == 0 {
		seed = syntheticSeed
	}
	return rows, seed, nil
}

// handleSimulate scores one scenario set and optionally publishes the
// decile tables to InfluxDB.
func (s *Server) handleSimulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	rows, seed, err := checkPopulation(req.Rows, req.Seed)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid population", "details": err.Error()})
		return
	}

	p := simulation.Params{
		TaxYear:     req.TaxYear,
		MinEarnings: req.MinEarnings,
		MinSavings:  req.MinSavings,
		ShiftProb:   req.ShiftProb,
	}
	log := telemetry.LoggerWithTrace(c.Request.Context(), slog.Default())
	log.Info("Handling simulate request",
		"tax_year", p.TaxYear, "shift_prob", p.ShiftProb, "rows", rows, "publish", req.Publish)

	input := records.Synthetic(rows, seed)
	start := time.Now()
	res, err := s.Driver.Run(c.Request.Context(), input, p)
	s.observeRun(c.Request.Context(), rows, time.Since(start).Seconds(), res, err)
	if err != nil {
		var cfgErr *simulation.ConfigError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parameters", "details": err.Error()})
			return
		}
		log.Error("Simulation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Simulation failed",
			"details": err.Error(), "trace_id": telemetry.TraceID(c.Request.Context())})
		return
	}

	runID := runstore.NewRunID(p.TaxYear)
	resp := buildResponse(runID, rows, res)

	if req.Publish {
		n, err := s.publishDeciles(c.Request.Context(), runID, res)
		if err != nil {
			log.Error("Failed to publish decile rows", "run_id", runID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Publish failed",
				"details": err.Error(), "trace_id": telemetry.TraceID(c.Request.Context())})
			return
		}
		resp.Published = n
	}

	c.JSON(http.StatusOK, resp)
}

// buildResponse flattens a driver result into the API response shape.
func buildResponse(runID string, rows int, res *simulation.Result) *SimulateResponse {
	noShift := res.NoShiftTable.All.AllTax
	partial := res.PartialTable.All.AllTax
	return &SimulateResponse{
		RunID:  runID,
		Params: res.Params.EchoLine(),
		Rows:   rows,
		Shifting: ShiftTotals{
			PrimaryShifters: res.Summary.PrimaryShifters,
			PrimaryAmount:   res.Summary.PrimaryAmount,
			SpouseShifters:  res.Summary.SpouseShifters,
			SpouseAmount:    res.Summary.SpouseAmount,
		},
		Revenue: RevenueTotals{
			Baseline:         res.BaselineTable.All.AllTax,
			ReformNoShift:    noShift,
			ReformFullShift:  res.FullShiftTable.All.AllTax,
			ReformPartial:    partial,
			ShiftingResponse: partial - noShift,
		},
	}
}

// publishDeciles writes one point per scenario and decile, tagged so a
// run's full comparison can be queried back by run ID.
func (s *Server) publishDeciles(ctx context.Context, runID string, res *simulation.Result) (int, error) {
	if s.WriteAPI == nil {
		slog.Info("Publish requested but InfluxDB is not configured, skipping", "run_id", runID)
		return 0, nil
	}

	now := time.Now()
	scenarios := []struct {
		name  string
		table *decile.Table
	}{
		{"baseline", res.BaselineTable},
		{"reform_no_shift", res.NoShiftTable},
		{"reform_full_shift", res.FullShiftTable},
		{"reform_partial_shift", res.PartialTable},
	}

	var points []*write.Point
	addPoint := func(scenario, bin string, row decile.Row) {
		points = append(points, influxdb2.NewPoint(
			decileMeasurement,
			map[string]string{
				"run_id":   runID,
				"scenario": scenario,
				"decile":   bin,
			},
			map[string]interface{}{
				"returns":         row.Returns,
				"expanded_income": row.ExpInc,
				"income_tax":      row.IncTax,
				"payroll_tax":     row.PayTax,
				"combined_tax":    row.AllTax,
			},
			now,
		))
	}
	for _, sc := range scenarios {
		for d := 0; d < decile.Bins; d++ {
			addPoint(sc.name, fmt.Sprintf("%02d", d+1), sc.table.Deciles[d])
		}
		addPoint(sc.name, "all", sc.table.All)
	}

	if err := s.WriteAPI.WritePoint(ctx, points...); err != nil {
		return 0, err
	}
	slog.Info("Published decile rows", "run_id", runID, "points", len(points))
	return len(points), nil
}

// handleResults queries a published run's decile rows back from InfluxDB.
func (s *Server) handleResults(c *gin.Context) {
	// Validate the run ID to prevent Flux injection
	runID, err := validation.SanitizeRunID(c.Param("run_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run id", "details": err.Error()})
		return
	}

	if s.QueryAPI == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Results backend not configured"})
		return
	}

	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -90d)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.run_id == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, influxBucket, decileMeasurement, runID)
	slog.Info("Querying InfluxDB for run", "run_id", runID)

	result, err := s.QueryAPI.Query(c.Request.Context(), query)
	if err != nil {
		slog.Error("Query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed", "details": err.Error()})
		return
	}

	// Some query failures surface as a nil result rather than an error.
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found", "run_id": runID})
		return
	}

	var points []DecilePoint
	for result.Next() {
		record := result.Record()

		point := DecilePoint{
			Time: record.Time().Format("2006-01-02T15:04:05Z"),
		}
		if val, ok := record.ValueByKey("scenario").(string); ok {
			point.Scenario = val
		}
		if val, ok := record.ValueByKey("decile").(string); ok {
			point.Decile = val
		}
		if val, ok := record.ValueByKey("returns").(float64); ok {
			point.Returns = val
		}
		if val, ok := record.ValueByKey("expanded_income").(float64); ok {
			point.ExpandedIncome = val
		}
		if val, ok := record.ValueByKey("income_tax").(float64); ok {
			point.IncomeTax = val
		}
		if val, ok := record.ValueByKey("payroll_tax").(float64); ok {
			point.PayrollTax = val
		}
		if val, ok := record.ValueByKey("combined_tax").(float64); ok {
			point.CombinedTax = val
		}

		points = append(points, point)
	}

	if result.Err() != nil {
		slog.Error("Result iteration error", "error", result.Err())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query result error", "details": result.Err().Error()})
		return
	}

	if len(points) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found", "run_id": runID})
		return
	}

	slog.Info("Query complete", "run_id", runID, "points_returned", len(points))
	c.JSON(http.StatusOK, ResultsResponse{RunID: runID, Points: points, Count: len(points)})
}

// handleSweep scores the scenario set across a shift-probability grid
// and returns the resulting revenue curve.
func (s *Server) handleSweep(c *gin.Context) {
	var req SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if len(req.Probs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No probabilities provided"})
		return
	}
	if len(req.Probs) > MAX_SWEEP_POINTS {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Too many grid points: %d (max %d)", len(req.Probs), MAX_SWEEP_POINTS)})
		return
	}
	for _, prob := range req.Probs {
		if prob < 0 || prob > 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Probability %v not in [0,1] range", prob)})
			return
		}
	}

	rows, seed, err := checkPopulation(req.Rows, req.Seed)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid population", "details": err.Error()})
		return
	}

	base := simulation.Params{TaxYear: req.TaxYear, MinEarnings: req.MinEarnings, MinSavings: req.MinSavings}
	if err := base.Validate(s.Driver.FirstReformYear()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parameters", "details": err.Error()})
		return
	}

	slog.Info("Handling sweep request",
		"tax_year", req.TaxYear, "grid_points", len(req.Probs), "rows", rows)

	// One shared population; each run copies it per scenario.
	input := records.Synthetic(rows, seed)

	var wg sync.WaitGroup
	jobs := make(chan float64, len(req.Probs))
	results := make(chan SweepPoint, len(req.Probs))

	for i := 0; i < NUM_WORKERS; i++ {
		wg.Add(1)
		go s.sweepWorker(c.Request.Context(), i, &wg, jobs, results, input, req)
	}

	for _, prob := range req.Probs {
		if s.Metrics != nil {
			s.Metrics.SweepQueueDepth.Add(c.Request.Context(), 1)
		}
		jobs <- prob
	}
	close(jobs)

	wg.Wait()
	close(results)

	// Collect and order the curve
	points := make([]SweepPoint, 0, len(req.Probs))
	for pt := range results {
		points = append(points, pt)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ShiftProb < points[j].ShiftProb })

	c.JSON(http.StatusOK, SweepResponse{TaxYear: req.TaxYear, Points: points, Count: len(points)})
}

// sweepWorker scores grid points until the jobs channel drains.
func (s *Server) sweepWorker(ctx context.Context, id int, wg *sync.WaitGroup,
	jobs <-chan float64, results chan<- SweepPoint,
	input *records.RecordSet, req SweepRequest) {

	defer wg.Done()
	for prob := range jobs {
		if s.Metrics != nil {
			s.Metrics.SweepQueueDepth.Add(ctx, -1)
		}
		slog.Info("Worker scoring grid point", "worker_id", id, "shift_prob", prob)

		p := simulation.Params{
			TaxYear:     req.TaxYear,
			MinEarnings: req.MinEarnings,
			MinSavings:  req.MinSavings,
			ShiftProb:   prob,
		}
		start := time.Now()
		res, err := s.Driver.Run(ctx, input, p)
		s.observeRun(ctx, input.Len(), time.Since(start).Seconds(), res, err)
		s.observeSweepJob(ctx, err)
		if err != nil {
			slog.Error("Grid point failed", "worker_id", id, "shift_prob", prob, "error", err)
			results <- SweepPoint{ShiftProb: prob, Error: err.Error()}
			continue
		}

		results <- SweepPoint{
			ShiftProb:       prob,
			Revenue:         res.PartialTable.All.AllTax,
			RevenueChange:   res.PartialTable.All.AllTax - res.NoShiftTable.All.AllTax,
			PrimaryShifters: res.Summary.PrimaryShifters,
			SpouseShifters:  res.Summary.SpouseShifters,
		}
	}
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// handleStream runs simulations over a websocket, emitting a progress
// event per stage and the full response on completion. The connection
// accepts repeated requests until the client disconnects.
func (s *Server) handleStream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	slog.Info("Websocket client connected")

	for {
		var req SimulateRequest
		if err := ws.ReadJSON(&req); err != nil {
			slog.Info("Websocket client disconnected", "error", err.Error())
			break
		}

		ctx := c.Request.Context()

		rows, seed, err := checkPopulation(req.Rows, req.Seed)
		if err != nil {
			if sendJSON(ws, StreamEvent{Event: "error", Message: err.Error()}) != nil {
				return
			}
			continue
		}

		p := simulation.Params{
			TaxYear:     req.TaxYear,
			MinEarnings: req.MinEarnings,
			MinSavings:  req.MinSavings,
			ShiftProb:   req.ShiftProb,
		}
		if err := p.Validate(s.Driver.FirstReformYear()); err != nil {
			if sendJSON(ws, StreamEvent{Event: "error", Message: err.Error()}) != nil {
				return
			}
			continue
		}

		runID := runstore.NewRunID(p.TaxYear)
		if sendJSON(ws, StreamEvent{Event: "accepted", RunID: runID}) != nil {
			return
		}

		input := records.Synthetic(rows, seed)
		if sendJSON(ws, StreamEvent{Event: "population", RunID: runID, Rows: rows}) != nil {
			return
		}
		if sendJSON(ws, StreamEvent{Event: "scoring", RunID: runID, Message: "scoring scenario set"}) != nil {
			return
		}

		start := time.Now()
		res, err := s.Driver.Run(ctx, input, p)
		s.observeRun(ctx, rows, time.Since(start).Seconds(), res, err)
		if err != nil {
			slog.Error("Streamed simulation failed", "run_id", runID, "error", err)
			if sendJSON(ws, StreamEvent{Event: "error", RunID: runID, Message: err.Error()}) != nil {
				return
			}
			continue
		}

		resp := buildResponse(runID, rows, res)
		if req.Publish {
			n, err := s.publishDeciles(ctx, runID, res)
			if err != nil {
				slog.Error("Failed to publish decile rows", "run_id", runID, "error", err)
			} else {
				resp.Published = n
			}
		}

		if sendJSON(ws, StreamEvent{Event: "done", RunID: runID, Result: resp}) != nil {
			return
		}
	}
}
