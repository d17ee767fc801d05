package scope

import (
	"image/color"
	"math"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gosr400/pkg/monitor"
	"github.com/itohio/gosr400/pkg/reading"
)

// DefaultMaxDisplayPoints limits the points drawn per trace.
const DefaultMaxDisplayPoints = 1000

// Trace colors by series name.
var traceColors = map[string]color.Color{
	monitor.SeriesA: color.RGBA{R: 255, G: 165, B: 0, A: 255},   // orange
	monitor.SeriesB: color.RGBA{R: 100, G: 200, B: 255, A: 255}, // light blue
	monitor.SeriesX: color.RGBA{R: 80, G: 220, B: 120, A: 255},  // green
}

var defaultTraceColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}

// trace is a downsampled series ready to draw.
type trace struct {
	name   string
	color  color.Color
	values []float64
}

// marker is an experiment average drawn as a cross.
type marker struct {
	t time.Time
	v float64
}

// ScopeWidget plots the recent history of the counter channels with the
// per-experiment averages as markers.
type ScopeWidget struct {
	widget.BaseWidget

	names     []string
	minWindow time.Duration

	// Data (protected by mu)
	mu      sync.RWMutex
	times   []time.Time
	traces  []trace
	markers []marker

	// Auto-scaling
	yMin, yMax float64
	xMin, xMax time.Time

	maxDisplayPoints int
}

// New creates a scope showing the named series. The time axis spans at least
// minWindow.
func New(minWindow time.Duration, names ...string) *ScopeWidget {
	if len(names) == 0 {
		names = []string{monitor.SeriesA, monitor.SeriesB, monitor.SeriesX}
	}
	s := &ScopeWidget{
		names:            names,
		minWindow:        minWindow,
		traces:           make([]trace, len(names)),
		maxDisplayPoints: DefaultMaxDisplayPoints,
	}
	for i, name := range names {
		c, ok := traceColors[name]
		if !ok {
			c = defaultTraceColor
		}
		s.traces[i] = trace{name: name, color: c, values: make([]float64, 0, s.maxDisplayPoints)}
	}
	s.ExtendBaseWidget(s)
	s.mu.Lock()
	s.updateAutoScale()
	s.mu.Unlock()
	s.Refresh()
	return s
}

// UpdateData takes a monitor snapshot. Call it from the UI goroutine, e.g.
// inside fyne.Do.
func (s *ScopeWidget) UpdateData(snap monitor.Snapshot) {
	s.mu.Lock()

	s.times = reading.Downsample(s.times, snap.Times, s.maxDisplayPoints)
	for i := range s.traces {
		s.traces[i].values = reading.Downsample(s.traces[i].values, snap.Series[s.traces[i].name], s.maxDisplayPoints)
	}

	s.markers = s.markers[:0]
	values := snap.Experiments[monitor.SeriesValue]
	for i, t := range snap.ExperimentTimes {
		if i < len(values) {
			s.markers = append(s.markers, marker{t: t, v: values[i]})
		}
	}

	s.updateAutoScale()
	s.mu.Unlock()

	s.Refresh()
}

// updateAutoScale must be called with s.mu held.
func (s *ScopeWidget) updateAutoScale() {
	if len(s.times) == 0 {
		now := time.Now()
		s.yMin, s.yMax = 0, 1
		s.xMin, s.xMax = now, now.Add(s.window())
		return
	}

	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, tr := range s.traces {
		for _, v := range tr.values {
			yMin = math.Min(yMin, v)
			yMax = math.Max(yMax, v)
		}
	}
	for _, m := range s.markers {
		yMin = math.Min(yMin, m.v)
		yMax = math.Max(yMax, m.v)
	}
	if math.IsInf(yMin, 0) || math.IsInf(yMax, 0) {
		yMin, yMax = 0, 1
	}

	// 10% margin
	span := yMax - yMin
	if span == 0 {
		span = math.Max(math.Abs(yMax), 1)
	}
	s.yMin = yMin - span*0.1
	s.yMax = yMax + span*0.1

	s.xMin = s.times[0]
	s.xMax = s.times[len(s.times)-1]
	if s.xMax.Sub(s.xMin) < s.window() {
		s.xMax = s.xMin.Add(s.window())
	}
}

func (s *ScopeWidget) window() time.Duration {
	if s.minWindow <= 0 {
		return 10 * time.Second
	}
	return s.minWindow
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
