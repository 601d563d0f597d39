// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch re-runs simulations when their input files change on disk.
//
// The watcher tracks a fixed set of files (policy YAML, reform YAML, the
// input CSV) rather than a directory tree. Editors typically save by
// writing a temporary file and renaming it over the original, which
// replaces the watched inode, so the watcher registers each file's parent
// directory with fsnotify and filters events down to the named files.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change records one observed edit to a watched file.
type Change struct {
	// Path is the file's absolute path.
	Path string

	// Op classifies the edit.
	Op Op

	// Time is when the event arrived.
	Time time.Time
}

// Op classifies a file event.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

var opNames = [...]string{"create", "write", "remove", "rename"}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "unknown"
	}
	return opNames[op]
}

// Handler is called with each debounced batch of changes.
type Handler func(changes []Change)

// Watcher reports debounced batches of changes to a fixed file set.
//
// A saved YAML edit often produces several events in quick succession
// (create of the temp file, rename over the target, chmod); the
// debounce window collapses them into a single handler call so a run
// is not triggered per event. The handler always runs on one
// goroutine; the rest of the Watcher is safe for concurrent use.
type Watcher struct {
	files    map[string]struct{}
	notifier *fsnotify.Watcher
	handler  Handler
	debounce time.Duration

	pending  chan Change
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// Options configures the Watcher.
type Options struct {
	// DebounceWindow is how long a batch waits for further edits
	// before the handler fires. Default 250ms.
	DebounceWindow time.Duration

	// BufferSize caps pending changes between the fsnotify goroutine
	// and the debouncer. Default 256.
	BufferSize int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 250 * time.Millisecond,
		BufferSize:     256,
	}
}

// NewWatcher prepares a watcher over paths; Start begins reporting.
// Relative paths resolve against the working directory. The files need
// not exist yet; a later create is reported like any other change.
// A nil opts takes DefaultOptions.
//
//	watcher, err := watch.NewWatcher([]string{"reform.yaml"}, func(changes []watch.Change) {
//	    for _, c := range changes {
//	        log.Printf("%s: %s", c.Op, c.Path)
//	    }
//	    // Re-run the simulation with the updated reform
//	}, nil)
//	if err != nil {
//	    return err
//	}
//	defer watcher.Stop()
//	if err := watcher.Start(ctx); err != nil {
//	    return err
//	}
func NewWatcher(paths []string, handler Handler, opts *Options) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one path is required")
	}
	opt := DefaultOptions()
	if opts != nil {
		opt = *opts
	}

	files := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		files[abs] = struct{}{}
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		files:    files,
		notifier: notifier,
		handler:  handler,
		debounce: opt.DebounceWindow,
		pending:  make(chan Change, opt.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the parent directory of every watched file and
// begins reporting debounced batches to the handler. It errors when a
// parent directory cannot be registered, and in that case no watching
// begins. The event and debounce goroutines both exit on Stop or
// context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}

	// Watch each file's parent directory exactly once.
	dirs := make(map[string]struct{})
	for f := range w.files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.notifier.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w.watching = true
	go w.forwardEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop halts both goroutines and closes the underlying fsnotify
// watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()

		close(w.done)
		_ = w.notifier.Close()
	})
}

// IsWatching reports whether Start has run and Stop has not.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// Files returns the absolute paths of the watched files.
func (w *Watcher) Files() []string {
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	return out
}

// watched reports whether an event path names one of the watched files.
func (w *Watcher) watched(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	_, ok := w.files[abs]
	return ok
}

// forwardEvents feeds events for the watched files to the debouncer.
func (w *Watcher) forwardEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.notifier.Events:
			if !ok {
				return
			}
			w.enqueue(event)
		case _, ok := <-w.notifier.Errors:
			// Transient watch errors are not fatal.
			if !ok {
				return
			}
		}
	}
}

// enqueue hands one event to the debouncer without blocking the
// fsnotify goroutine. Directory watches see every sibling file;
// events for unwatched names are noise.
func (w *Watcher) enqueue(event fsnotify.Event) {
	if !w.watched(event.Name) {
		return
	}
	c := Change{Path: event.Name, Op: convertOp(event.Op), Time: time.Now()}
	select {
	case w.pending <- c:
	default:
		// A full buffer drops this event; the batch still fires.
	}
}

// convertOp converts fsnotify.Op to Op.
func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite // Chmod and friends count as writes
	}
}

// debounceLoop accumulates changes until the window closes, then
// hands the deduplicated batch to the handler.
func (w *Watcher) debounceLoop(ctx context.Context) {
	// Reset on an armed timer is safe without draining under the
	// go1.23 timer semantics; a stale tick cannot sit in the channel.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	var batch []Change
	for {
		select {
		case <-ctx.Done():
			w.deliver(batch)
			return
		case <-w.done:
			w.deliver(batch)
			return
		case c := <-w.pending:
			batch = append(batch, c)
			// Every new change pushes the window out again.
			timer.Reset(w.debounce)
		case <-timer.C:
			w.deliver(batch)
			batch = nil
		}
	}
}

// deliver collapses a batch and hands it to the handler.
func (w *Watcher) deliver(batch []Change) {
	if len(batch) == 0 || w.handler == nil {
		return
	}
	w.handler(latestPerPath(batch))
}

// latestPerPath keeps the newest change per file, in the order the
// paths first appeared.
func latestPerPath(batch []Change) []Change {
	byPath := make(map[string]Change, len(batch))
	order := make([]string, 0, len(batch))

	for _, c := range batch {
		if _, ok := byPath[c.Path]; !ok {
			order = append(order, c.Path)
		}
		byPath[c.Path] = c
	}

	out := make([]Change, len(order))
	for i, p := range order {
		out[i] = byPath[p]
	}
	return out
}
