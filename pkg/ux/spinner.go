// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner is an animated progress indicator for operations that take
// more than a moment, such as scoring a large synthetic population.
// Runs longer than a couple of seconds get an elapsed-time suffix.
// In machine mode the message prints once and no animation runs.
type Spinner struct {
	mu        sync.Mutex
	message   string
	startedAt time.Time
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewSpinner creates a spinner that will display message.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the animation. Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.startedAt = time.Now()

	if GetMode() == ModeMachine {
		fmt.Printf("PROGRESS: %s\n", s.message)
		return
	}
	go s.run()
}

func (s *Spinner) run() {
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-s.stop:
			fmt.Print("\r\033[K")
			close(s.done)
			return
		case <-ticker.C:
			s.mu.Lock()
			message := s.message
			elapsed := time.Since(s.startedAt)
			s.mu.Unlock()

			line := fmt.Sprintf("%s %s", Styles.Highlight.Render(spinnerFrames[frame]), message)
			if elapsed >= 2*time.Second {
				line += " " + Styles.Muted.Render(fmt.Sprintf("(%ds)", int(elapsed.Seconds())))
			}
			// Clear before redraw so a shortened message leaves no residue.
			fmt.Print("\r\033[K" + line)
			frame = (frame + 1) % len(spinnerFrames)
		}
	}
}

// Stop halts the animation and clears the line. Stop on a spinner
// that never started is a no-op.
func (s *Spinner) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	// Waiting on the render goroutine must happen unlocked; its ticker
	// branch takes the same mutex.
	if !wasRunning || GetMode() == ModeMachine {
		return
	}
	close(s.stop)
	<-s.done
}

// UpdateMessage swaps the displayed message while the spinner runs.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}
