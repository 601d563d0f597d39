// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file implements secure loading of microdata files. Tax microdata
// is sensitive: while the raw bytes are held before parsing they live in
// mlocked memory so they cannot be swapped to disk, and they are wiped
// as soon as the columnar set has been built.

package records

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// MaxSecureFileBytes caps the file size the secure path will hold in
// locked memory. Larger files fall back to the standard loader.
const MaxSecureFileBytes = 256 * 1024 * 1024 // 256 MB

var (
	memguardInitOnce sync.Once

	// mlockLimitBytes is the soft RLIMIT_MEMLOCK observed at init;
	// -1 means unlimited.
	mlockLimitBytes int64
)

// Loader reads a microdata file into a RecordSet.
//
// # Description
//
// Loader abstracts the file-to-RecordSet path so callers need not know
// whether locked memory is available on this system.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type Loader interface {
	// Load reads and parses the microdata file at path.
	Load(path string) (*RecordSet, error)

	// Secure reports whether raw bytes are held in mlocked memory.
	Secure() bool
}

// initMemguard probes the mlock limit once per process and arms
// memguard's interrupt-safe teardown.
func initMemguard(logger *slog.Logger) {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()

		var lim unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &lim); err != nil {
			mlockLimitBytes = 0
			if logger != nil {
				logger.Warn("cannot read RLIMIT_MEMLOCK, secure loading disabled",
					slog.String("error", err.Error()))
			}
			return
		}
		if lim.Cur == unix.RLIM_INFINITY {
			mlockLimitBytes = -1
		} else {
			mlockLimitBytes = int64(lim.Cur)
		}
		if logger != nil {
			logger.Debug("mlock limit probed",
				slog.Int64("limit_bytes", mlockLimitBytes))
		}
	})
}

// NewLoader returns a SecureLoader when the process mlock limit allows
// locking at least MaxSecureFileBytes, else a StandardLoader. logger
// may be nil.
func NewLoader(logger *slog.Logger) Loader {
	initMemguard(logger)
	if mlockLimitBytes == -1 || mlockLimitBytes >= MaxSecureFileBytes {
		return &SecureLoader{logger: logger}
	}
	if logger != nil {
		logger.Warn("mlock limit too low for secure microdata loading, using standard loader",
			slog.Int64("limit_bytes", mlockLimitBytes),
			slog.Int64("required_bytes", MaxSecureFileBytes))
	}
	return &StandardLoader{logger: logger}
}

// SecureLoader holds raw microdata bytes in mlocked memory while
// parsing, then destroys the buffer.
type SecureLoader struct {
	logger *slog.Logger
}

// Load reads path into a locked buffer, parses it, and wipes the raw
// bytes before returning. Files larger than MaxSecureFileBytes are
// rejected so the mlock budget cannot be blown mid-run.
func (l *SecureLoader) Load(path string) (*RecordSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat microdata file %s: %w", path, err)
	}
	if info.Size() > MaxSecureFileBytes {
		return nil, fmt.Errorf("microdata file %s is %d bytes, above the %d byte secure-load cap",
			path, info.Size(), MaxSecureFileBytes)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read microdata file %s: %w", path, err)
	}
	// NewBufferFromBytes moves raw into locked memory and wipes the
	// source slice.
	buf := memguard.NewBufferFromBytes(raw)
	defer buf.Destroy()

	rs, err := LoadCSV(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}
	if l.logger != nil {
		l.logger.Info("microdata loaded",
			slog.String("path", path),
			slog.Int("rows", rs.Len()),
			slog.Bool("secure", true))
	}
	return rs, nil
}

// Secure reports true.
func (l *SecureLoader) Secure() bool { return true }

// StandardLoader reads microdata without locked memory. Used when the
// mlock limit is too low or secure loading is disabled.
type StandardLoader struct {
	logger *slog.Logger
}

// Load reads and parses the microdata file at path.
func (l *StandardLoader) Load(path string) (*RecordSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open microdata file %s: %w", path, err)
	}
	defer f.Close()

	rs, err := LoadCSV(f)
	if err != nil {
		return nil, err
	}
	if l.logger != nil {
		l.logger.Info("microdata loaded",
			slog.String("path", path),
			slog.Int("rows", rs.Len()),
			slog.Bool("secure", false))
	}
	return rs, nil
}

// Secure reports false.
func (l *StandardLoader) Secure() bool { return false }

var (
	_ Loader = (*SecureLoader)(nil)
	_ Loader = (*StandardLoader)(nil)
)
