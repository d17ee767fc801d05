package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/itohio/gosr400/pkg/reading"
)

// DefaultFileInterval is how often a tailed file is checked for new lines.
const DefaultFileInterval = 100 * time.Millisecond

// FileSource tails a data file, emitting every complete line appended since
// the previous poll. Lines of .csv files are comma separated, other files
// use spaces.
type FileSource struct {
	Path     string
	Interval time.Duration

	offset int64
}

// Separator returns the field separator for the file.
func (s *FileSource) Separator() rune {
	if strings.EqualFold(filepath.Ext(s.Path), ".csv") {
		return reading.Comma
	}
	return reading.Space
}

// Offset returns the number of bytes consumed so far.
func (s *FileSource) Offset() int64 { return s.offset }

// Run polls the file until ctx is cancelled. A file that cannot be opened on
// the first poll fails the run; later read errors are logged.
func (s *FileSource) Run(ctx context.Context, out chan<- reading.Reading, emit func(Event)) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultFileInterval
	}

	if _, err := s.poll(ctx, out); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("failed to read %s: %w", s.Path, err)
	}

	for {
		if err := sleep(ctx, interval); err != nil {
			return err
		}
		if _, err := s.poll(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Error reading %s: %v", s.Path, err)
		}
	}
}

// poll reads complete lines past the last offset and returns how many rows
// were sent. A trailing partial line is left for the next poll.
func (s *FileSource) poll(ctx context.Context, out chan<- reading.Reading) (int, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() < s.offset {
		// Truncated or replaced: start over.
		s.offset = 0
	}
	if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
		return 0, err
	}

	sep := s.Separator()
	r := bufio.NewReader(f)
	n := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		size := int64(len(line))

		line = strings.TrimSpace(line)
		if line == "" {
			s.offset += size
			continue
		}
		row, perr := reading.Parse(line, sep)
		if perr != nil {
			log.Printf("Skipping line in %s: %v", s.Path, perr)
			s.offset += size
			continue
		}
		row.Timestamp = time.Now()
		// A row not delivered before cancellation is read again next time.
		if err := send(ctx, out, row); err != nil {
			return n, err
		}
		s.offset += size
		n++
	}
}
