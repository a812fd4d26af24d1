// Package sessionlog writes the device stream of one terminal session to a
// plain text file named after the session start time.
package sessionlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrIO is returned when the log file cannot be opened or written.
var ErrIO = errors.New("sessionlog: i/o failure")

// fileNameLayout gives names like 20181114-1530hrs-07sec_serialdata.txt.
// Two sessions started in the same second share a name and append to the
// same file.
const fileNameLayout = "20060102-1504hrs-05sec_serialdata.txt"

// FileName returns the log file name for a session started at t.
func FileName(t time.Time) string {
	return t.Format(fileNameLayout)
}

// Log is an open session log. It is used from a single goroutine.
type Log struct {
	f    *os.File
	path string
}

// Open creates dir if needed and opens the log file for a session started
// at now. Failures wrap ErrIO.
func Open(dir string, now time.Time) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create log dir: %v", ErrIO, err)
	}
	path := filepath.Join(dir, FileName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return &Log{f: f, path: path}, nil
}

// Path returns the file path of the log.
func (l *Log) Path() string {
	return l.path
}

// Append writes text and flushes it to disk before returning, so everything
// appended so far survives a crash.
func (l *Log) Append(text string) error {
	if l.f == nil {
		return fmt.Errorf("%w: log closed", ErrIO)
	}
	if _, err := l.f.WriteString(text); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrIO, err)
	}
	return nil
}

// Close closes the file. Calling it again, or on a nil Log, does nothing.
func (l *Log) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}
