// Package recorder appends drained rows to a timestamped text file.
//
// A file is named <prefix>_YYYYMMDD_HHMMSS.txt and holds one line per row:
//
//	1718000000.123456 - 12.0 3.0
package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// DefaultPrefix is the file name prefix used when none is configured.
const DefaultPrefix = "recorded_data"

// ErrNotRecording is returned by Record when no file is open.
var ErrNotRecording = errors.New("not recording")

// Recorder owns at most one open log file.
type Recorder struct {
	mu     sync.Mutex
	dir    string
	prefix string
	f      *os.File
	w      *bufio.Writer
	path   string
}

// New creates a recorder writing into dir.
func New(dir, prefix string) *Recorder {
	if dir == "" {
		dir = "."
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Recorder{dir: dir, prefix: prefix}
}

// SetLocation changes where the next recording is created. An open file is
// not affected.
func (r *Recorder) SetLocation(dir, prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dir != "" {
		r.dir = dir
	}
	if prefix != "" {
		r.prefix = prefix
	}
}

// FileName returns the log file name for a recording started at t.
func FileName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.txt", prefix, t.Format("20060102_150405"))
}

// Start creates a new file. Starting while recording is a no-op. On failure
// the recorder stays idle.
func (r *Recorder) Start(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f != nil {
		return nil
	}

	path := filepath.Join(r.dir, FileName(r.prefix, now))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create recording file: %w", err)
	}

	r.f = f
	r.w = bufio.NewWriter(f)
	r.path = path
	return nil
}

// Stop flushes and closes the file. Stopping while idle is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return nil
	}

	err := multierr.Append(r.w.Flush(), r.f.Close())
	r.f = nil
	r.w = nil
	if err != nil {
		return fmt.Errorf("failed to close recording file %s: %w", r.path, err)
	}
	return nil
}

// Toggle starts recording when idle and stops it otherwise. It returns
// whether the recorder is recording afterwards.
func (r *Recorder) Toggle(now time.Time) (bool, error) {
	if r.Recording() {
		return false, r.Stop()
	}
	if err := r.Start(now); err != nil {
		return false, err
	}
	return true, nil
}

// Recording reports whether a file is open.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f != nil
}

// Path returns the path of the current or last file.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Record appends one timestamped line and flushes it.
func (r *Recorder) Record(t time.Time, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return ErrNotRecording
	}

	r.w.WriteString(Timestamp(t))
	r.w.WriteString(" - ")
	r.w.WriteString(line)
	r.w.WriteByte('\n')
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}
	return nil
}

// Timestamp formats t as Unix seconds with microsecond resolution.
func Timestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}
