package reading

import (
	"time"

	"github.com/gammazero/deque"
)

// DefaultMaxPoints is the history length kept for display.
const DefaultMaxPoints = 100

// Series keeps the last max entries of several named channels and their time
// axis. All channels are appended and trimmed together, so they always have
// the same length.
//
// Series is not safe for concurrent use; the owner serializes access.
type Series struct {
	max      int
	names    []string
	times    deque.Deque[time.Time]
	channels []deque.Deque[float64]
}

// NewSeries creates a series holding at most max entries per channel.
func NewSeries(max int, names ...string) *Series {
	if max <= 0 {
		max = DefaultMaxPoints
	}
	n := make([]string, len(names))
	copy(n, names)
	return &Series{
		max:      max,
		names:    n,
		channels: make([]deque.Deque[float64], len(names)),
	}
}

// Names returns the channel names in order.
func (s *Series) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Max returns the history length.
func (s *Series) Max() int { return s.max }

// Append adds one entry. Missing values are stored as 0 and extra values are
// ignored, so the channels stay in lockstep.
func (s *Series) Append(t time.Time, values ...float64) {
	s.times.PushBack(t)
	for i := range s.channels {
		v := 0.0
		if i < len(values) {
			v = values[i]
		}
		s.channels[i].PushBack(v)
	}

	for s.times.Len() > s.max {
		s.times.PopFront()
		for i := range s.channels {
			s.channels[i].PopFront()
		}
	}
}

// Len returns the number of entries held.
func (s *Series) Len() int { return s.times.Len() }

// Times returns a copy of the time axis, oldest first.
func (s *Series) Times() []time.Time {
	out := make([]time.Time, s.times.Len())
	for i := range out {
		out[i] = s.times.At(i)
	}
	return out
}

// Values returns a copy of the named channel, oldest first, or nil if the
// channel does not exist.
func (s *Series) Values(name string) []float64 {
	idx := s.index(name)
	if idx < 0 {
		return nil
	}
	ch := &s.channels[idx]
	out := make([]float64, ch.Len())
	for i := range out {
		out[i] = ch.At(i)
	}
	return out
}

// Last returns the newest value of the named channel.
func (s *Series) Last(name string) (float64, bool) {
	idx := s.index(name)
	if idx < 0 || s.channels[idx].Len() == 0 {
		return 0, false
	}
	return s.channels[idx].Back(), true
}

// Reset drops all entries.
func (s *Series) Reset() {
	s.times.Clear()
	for i := range s.channels {
		s.channels[i].Clear()
	}
}

func (s *Series) index(name string) int {
	for i, n := range s.names {
		if n == name {
			return i
		}
	}
	return -1
}
