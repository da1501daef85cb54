// Log file output with size-based rollover
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// DefaultFileBackups is the number of rolled files kept when FileConfig
// leaves Backups unset.
const DefaultFileBackups = 3

// FileConfig configures a log file.
type FileConfig struct {
	// Name is the path of the active log file.
	Name string

	// MaxSize is the size in bytes past which the file is rolled over.
	// Zero disables rollover.
	MaxSize int64

	// Backups is the number of rolled files kept as Name.1 (newest)
	// through Name.N.
	Backups int
}

// FileWriter appends to a log file and rolls it over before a write
// would take it past MaxSize. A single write is never split.
type FileWriter struct {
	mu      sync.Mutex
	name    string
	maxSize int64
	backups int
	size    int64
	file    *os.File
}

// OpenFile opens cfg.Name for appending, creating it and its directory
// if needed.
func OpenFile(cfg FileConfig) (*FileWriter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("log file name is required")
	}
	if cfg.MaxSize < 0 {
		return nil, fmt.Errorf("log file max size must not be negative, got %d", cfg.MaxSize)
	}
	backups := cfg.Backups
	if backups <= 0 {
		backups = DefaultFileBackups
	}
	w := &FileWriter{name: cfg.Name, maxSize: cfg.MaxSize, backups: backups}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *FileWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.name), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(w.name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.maxSize > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.roll(); err != nil {
			return 0, fmt.Errorf("roll log file: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// backupName returns the name of the i-th rolled file; 0 is the active one.
func (w *FileWriter) backupName(i int) string {
	if i == 0 {
		return w.name
	}
	return w.name + "." + strconv.Itoa(i)
}

// roll shifts Name.i to Name.i+1, dropping the oldest, and starts a new
// active file.
func (w *FileWriter) roll() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil
	for i := w.backups; i > 0; i-- {
		err := os.Rename(w.backupName(i-1), w.backupName(i))
		if err != nil && !os.IsNotExist(err) {
			w.open()
			return err
		}
	}
	return w.open()
}

// Size returns the size of the active file.
func (w *FileWriter) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Name returns the path of the active file.
func (w *FileWriter) Name() string {
	return w.name
}

// Close closes the active file. Later writes fail.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
