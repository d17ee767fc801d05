package acquire

import (
	"context"
	"time"

	"github.com/itohio/gosr400/pkg/reading"
)

// EventKind identifies a worker event.
type EventKind int

const (
	Started EventKind = iota
	Experiment
	Completed
	Stopped
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Started:
		return "started"
	case Experiment:
		return "experiment"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Event reports worker progress. Experiment events carry the averages of one
// experiment and X, the running mean of Value over the session.
type Event struct {
	Kind  EventKind
	Time  time.Time
	Index int // 1-based experiment number
	Total int
	AvgA  float64
	AvgB  float64
	Value float64
	X     float64
	Err   error
}

// Source produces readings until it is done or ctx is cancelled.
// Cancellation is reported by returning ctx.Err().
type Source interface {
	Run(ctx context.Context, out chan<- reading.Reading, emit func(Event)) error
}

func send(ctx context.Context, out chan<- reading.Reading, r reading.Reading) error {
	select {
	case out <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
