// Package monitor is the display model: it drains the acquisition queue into
// bounded series, keeps the latest values and recent lines, and forwards rows
// to the recorder.
package monitor

import (
	"log"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/itohio/gosr400/pkg/acquire"
	"github.com/itohio/gosr400/pkg/config"
	"github.com/itohio/gosr400/pkg/reading"
	"github.com/itohio/gosr400/pkg/recorder"
	"github.com/itohio/gosr400/pkg/sr400"
)

// Channel names of the series.
const (
	SeriesA = "A"
	SeriesB = "B"
	SeriesX = "X"
	// SeriesValue holds the per-experiment value in Experiments.
	SeriesValue = "Value"
)

// DefaultRecentLines is how many formatted rows are kept for display.
const DefaultRecentLines = 10

// Snapshot is a copy of the monitor state.
type Snapshot struct {
	A, B   float64
	QA, QB float64
	Avg    float64

	Times  []time.Time
	Series map[string][]float64 // A, B and X per drained row

	ExperimentTimes []time.Time
	Experiments     map[string][]float64 // Value and X per experiment

	Lines     []string // last rows, oldest first
	Recording bool
}

// Monitor drains a queue of readings. It is safe for concurrent use.
type Monitor struct {
	queue <-chan reading.Reading
	rec   *recorder.Recorder

	mu          sync.RWMutex
	series      *reading.Series
	experiments *reading.Series
	lines       deque.Deque[string]
	maxLines    int
	a, b        float64
	qa, qb      float64
	avg         float64

	callbacks []func(Snapshot)
	cbMu      sync.RWMutex
}

// New creates a monitor draining queue. rec may be nil.
func New(queue <-chan reading.Reading, cfg config.DisplayConfig, rec *recorder.Recorder) *Monitor {
	maxLines := cfg.RecentLines
	if maxLines <= 0 {
		maxLines = DefaultRecentLines
	}
	return &Monitor{
		queue:       queue,
		rec:         rec,
		series:      reading.NewSeries(cfg.MaxDataPoints, SeriesA, SeriesB, SeriesX),
		experiments: reading.NewSeries(cfg.MaxDataPoints, SeriesValue, SeriesX),
		maxLines:    maxLines,
	}
}

// Recorder returns the recorder rows are forwarded to.
func (m *Monitor) Recorder() *recorder.Recorder { return m.rec }

// Drain processes every row currently queued and returns how many there
// were. Draining an empty queue changes nothing and does not notify.
func (m *Monitor) Drain() int {
	n := 0

	m.mu.Lock()
loop:
	for {
		select {
		case r, ok := <-m.queue:
			if !ok {
				break loop
			}
			m.process(r)
			n++
		default:
			break loop
		}
	}
	m.mu.Unlock()

	if n > 0 {
		m.notifyCallbacks()
	}
	return n
}

// process must be called with m.mu held.
func (m *Monitor) process(r reading.Reading) {
	now := time.Now()
	t := r.Timestamp
	if t.IsZero() {
		t = now
	}

	line := r.Format()
	m.lines.PushBack(line)
	for m.lines.Len() > m.maxLines {
		m.lines.PopFront()
	}

	if v, ok := r.Value(0); ok {
		m.a = v
	}
	if v, ok := r.Value(1); ok {
		m.b = v
	}
	m.series.Append(t, m.a, m.b, m.avg)

	if m.rec != nil && m.rec.Recording() {
		if err := m.rec.Record(now, line); err != nil {
			log.Printf("Failed to record row: %v", err)
		}
	}
}

// SetQ stores a polled QA or QB value.
func (m *Monitor) SetQ(ch sr400.Channel, v float64) {
	m.mu.Lock()
	switch ch {
	case sr400.ChannelA:
		m.qa = v
	case sr400.ChannelB:
		m.qb = v
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.notifyCallbacks()
}

// ObserveExperiment takes the averages of a finished experiment.
func (m *Monitor) ObserveExperiment(e acquire.Event) {
	if e.Kind != acquire.Experiment {
		return
	}

	m.mu.Lock()
	m.a = e.AvgA
	m.b = e.AvgB
	m.avg = e.X
	t := e.Time
	if t.IsZero() {
		t = time.Now()
	}
	m.experiments.Append(t, e.Value, e.X)
	m.mu.Unlock()

	m.notifyCallbacks()
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot()
}

func (m *Monitor) snapshot() Snapshot {
	s := Snapshot{
		A:               m.a,
		B:               m.b,
		QA:              m.qa,
		QB:              m.qb,
		Avg:             m.avg,
		Times:           m.series.Times(),
		Series:          make(map[string][]float64, 3),
		ExperimentTimes: m.experiments.Times(),
		Experiments:     make(map[string][]float64, 2),
		Lines:           make([]string, m.lines.Len()),
		Recording:       m.rec != nil && m.rec.Recording(),
	}
	for _, name := range m.series.Names() {
		s.Series[name] = m.series.Values(name)
	}
	for _, name := range m.experiments.Names() {
		s.Experiments[name] = m.experiments.Values(name)
	}
	for i := range s.Lines {
		s.Lines[i] = m.lines.At(i)
	}
	return s
}

// Reset clears series, lines and values. Polled QA/QB values are kept.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.series.Reset()
	m.experiments.Reset()
	m.lines.Clear()
	m.a, m.b, m.avg = 0, 0, 0
	m.mu.Unlock()

	m.notifyCallbacks()
}

// OnUpdate registers a callback invoked with a snapshot after every change.
// The callback should return quickly.
func (m *Monitor) OnUpdate(callback func(Snapshot)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// notifyCallbacks copies the state under the read lock and calls the
// callbacks without holding any lock.
func (m *Monitor) notifyCallbacks() {
	snap := m.Snapshot()

	m.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(snap)
		}
	}
}
