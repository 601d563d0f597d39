// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package runstore persists completed simulation runs in an embedded
// BadgerDB so earlier results can be listed, re-printed, diffed, and
// archived without re-scoring the input file.
//
// Each run is stored as one JSON document keyed by its run ID. The
// store keeps the report text verbatim so a stored run replays
// byte-for-byte.
//
// Badger itself is Apache 2.0 licensed (github.com/dgraph-io/badger).
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/ShiftSim/pkg/decile"
	"github.com/AleutianAI/ShiftSim/pkg/shift"
	"github.com/AleutianAI/ShiftSim/pkg/simulation"
)

// ErrNotFound is returned when no run exists under the requested ID.
var ErrNotFound = errors.New("run not found")

// runKeyPrefix namespaces run documents within the database.
const runKeyPrefix = "run:"

var (
	storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftsim_runstore_writes_total",
		Help: "Run documents written to the local store.",
	}, []string{"status"})

	storeReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftsim_runstore_reads_total",
		Help: "Run documents read from the local store.",
	}, []string{"status"})
)

// RunRecord is the stored form of one completed simulation run.
type RunRecord struct {
	// ID is the run's unique identifier, es{year}_{uuid8}_{timestamp}.
	ID string `json:"id"`

	// CreatedAt is when the run finished.
	CreatedAt strfmt.DateTime `json:"created_at"`

	// Params are the scenario parameters the run was scored with.
	Params simulation.Params `json:"params"`

	// Rows is the number of tax units in the input file.
	Rows int `json:"rows"`

	// InputPath records the CSV the run was scored from.
	InputPath string `json:"input_path,omitempty"`

	// Summary holds the partial-shift adoption counts and amounts.
	Summary shift.Summary `json:"summary"`

	// Decile tables for each scenario, in scoring order.
	Baseline  *decile.Table `json:"baseline,omitempty"`
	NoShift   *decile.Table `json:"no_shift,omitempty"`
	FullShift *decile.Table `json:"full_shift,omitempty"`
	Partial   *decile.Table `json:"partial,omitempty"`

	// Report is the full plain-text report, stored verbatim.
	Report string `json:"report"`
}

// NewRunID returns a fresh run identifier, for example
// es2017_3f8a91c2_20250825T141502.
func NewRunID(year int) string {
	return fmt.Sprintf("es%d_%s_%s",
		year, uuid.NewString()[:8], time.Now().UTC().Format("20060102T150405"))
}

// NewRunRecord builds a RunRecord from a finished driver result.
func NewRunRecord(res *simulation.Result, inputPath string) *RunRecord {
	report, _ := simulation.Report(res) // builder writes cannot fail
	rec := &RunRecord{
		ID:        NewRunID(res.Params.TaxYear),
		CreatedAt: strfmt.DateTime(time.Now().UTC()),
		Params:    res.Params,
		InputPath: inputPath,
		Summary:   res.Summary,
		Baseline:  res.BaselineTable,
		NoShift:   res.NoShiftTable,
		FullShift: res.FullShiftTable,
		Partial:   res.PartialTable,
		Report:    report,
	}
	if res.Baseline != nil {
		rec.Rows = res.Baseline.Len()
	}
	return rec
}

// Config holds configuration for the run store.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	// InMemory skips the disk entirely, for tests.
	InMemory bool

	// SyncWrites makes each write durable before returning.
	SyncWrites bool

	// Logger receives Badger's internal output; nil silences it.
	Logger *slog.Logger

	// GCInterval schedules value-log garbage collection; 0 disables.
	GCInterval time.Duration

	// GCDiscardRatio is the discardable fraction a value-log file
	// needs before GC rewrites it.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and a
// 5-minute GC interval.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		GCInterval: 0,
	}
}

// badgerLogger bridges Badger's printf-style logger onto slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// badgerLog wraps a slog logger for Badger; nil silences Badger's
// internal output entirely.
func badgerLog(l *slog.Logger) badger.Logger {
	if l == nil {
		return nil
	}
	return &badgerLogger{logger: l}
}

// Store is a BadgerDB-backed archive of simulation runs.
//
// # Description
//
// Store owns the database handle and an optional GC runner. Open it
// once per process and share it; Close releases both.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions provide isolation
// between concurrent Put and Get calls.
type Store struct {
	db       *badger.DB
	gc       *gcRunner
	path     string
	inMemory bool
}

// Open creates and opens a run store with the given configuration.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	base := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		base = badger.DefaultOptions("").WithInMemory(true)
	} else if err := os.MkdirAll(cfg.Path, 0750); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
	}

	db, err := badger.Open(base.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLog(cfg.Logger)))
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	store := &Store{
		db:       db,
		path:     cfg.Path,
		inMemory: cfg.InMemory,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		store.gc = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return store, nil
}

// OpenInMemory opens a throwaway in-memory store for testing.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// Path returns the store directory, or "" for in-memory stores.
func (s *Store) Path() string { return s.path }

// InMemory reports whether the store persists to disk.
func (s *Store) InMemory() bool { return s.inMemory }

// Put stores a run document, overwriting any existing run with the
// same ID.
func (s *Store) Put(ctx context.Context, rec *RunRecord) error {
	if rec == nil || rec.ID == "" {
		storeWrites.WithLabelValues("error").Inc()
		return errors.New("run record must have an ID")
	}
	if err := ctx.Err(); err != nil {
		storeWrites.WithLabelValues("error").Inc()
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		storeWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal run %s: %w", rec.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(rec.ID), data)
	})
	if err != nil {
		storeWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("store run %s: %w", rec.ID, err)
	}

	storeWrites.WithLabelValues("ok").Inc()
	return nil
}

// Get retrieves a run by ID. Returns ErrNotFound when no run exists.
func (s *Store) Get(ctx context.Context, id string) (*RunRecord, error) {
	if err := ctx.Err(); err != nil {
		storeReads.WithLabelValues("error").Inc()
		return nil, err
	}

	var rec RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		storeReads.WithLabelValues("miss").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		storeReads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}

	storeReads.WithLabelValues("ok").Inc()
	return &rec, nil
}

// List returns all stored runs, newest first.
func (s *Store) List(ctx context.Context) ([]*RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var runs []*RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec RunRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("unmarshal run %s: %w", it.Item().Key(), err)
				}
				runs = append(runs, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return time.Time(runs[i].CreatedAt).After(time.Time(runs[j].CreatedAt))
	})
	return runs, nil
}

// Delete removes a run by ID. Deleting a missing run returns
// ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		} else if err != nil {
			return err
		}
		return txn.Delete(runKey(id))
	})
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func runKey(id string) []byte {
	return []byte(runKeyPrefix + id)
}

// gcRunner drives Badger's value-log garbage collection on a ticker.
type gcRunner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startGC(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &gcRunner{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collectValueLog(db, ratio, logger)
			}
		}
	}()
	return r
}

func (r *gcRunner) stop() {
	r.cancel()
	<-r.done
}

// collectValueLog reclaims value-log space. ErrNoRewrite just means
// nothing had accumulated since the last cycle.
func collectValueLog(db *badger.DB, ratio float64, logger *slog.Logger) {
	err := db.RunValueLogGC(ratio)
	switch {
	case err == nil:
		if logger != nil {
			logger.Debug("run store value log compacted")
		}
	case errors.Is(err, badger.ErrNoRewrite):
	default:
		if logger != nil {
			logger.Warn("run store value log GC failed", slog.String("error", err.Error()))
		}
	}
}
