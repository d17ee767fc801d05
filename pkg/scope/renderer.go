package scope

import (
	"image/color"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/chewxy/math32"
)

// Plot area margins.
const (
	marginLeft   = float32(60)
	marginRight  = float32(20)
	marginTop    = float32(20)
	marginBottom = float32(40)
	markerSize   = float32(4)
)

var (
	gridColor   = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor  = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	markerColor = color.RGBA{R: 255, G: 80, B: 80, A: 255}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	bg       *canvas.Rectangle
	objects  []fyne.CanvasObject
	lastSize fyne.Size
}

// plotArea maps data to canvas coordinates.
type plotArea struct {
	x, y, w, h float32
	yMin, yMax float64
	xMin       time.Time
	xSpan      float64 // seconds
}

func (a plotArea) pos(t time.Time, v float64) fyne.Position {
	fx := float32(t.Sub(a.xMin).Seconds() / a.xSpan)
	fy := float32((v - a.yMin) / (a.yMax - a.yMin))
	return fyne.NewPos(a.x+clamp01(fx)*a.w, a.y+a.h-clamp01(fy)*a.h)
}

func (a plotArea) contains(t time.Time) bool {
	f := t.Sub(a.xMin).Seconds() / a.xSpan
	return f >= 0 && f <= 1
}

func clamp01(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Max(0, math32.Min(1, v))
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds the canvas objects from the current data.
func (r *scopeRenderer) Refresh() {
	s := r.scope
	s.mu.RLock()
	times := s.times
	traces := make([]trace, len(s.traces))
	copy(traces, s.traces)
	markers := s.markers
	area := plotArea{
		yMin:  s.yMin,
		yMax:  s.yMax,
		xMin:  s.xMin,
		xSpan: s.xMax.Sub(s.xMin).Seconds(),
	}
	s.mu.RUnlock()

	size := s.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}
	area.x, area.y = marginLeft, marginTop
	area.w = math32.Max(size.Width-marginLeft-marginRight, 1)
	area.h = math32.Max(size.Height-marginTop-marginBottom, 1)
	if area.xSpan <= 0 {
		area.xSpan = 1
	}

	r.objects = []fyne.CanvasObject{r.bg}
	r.drawGrid(area)
	for _, tr := range traces {
		r.drawTrace(area, times, tr)
	}
	r.drawMarkers(area, markers)
	r.drawLegend(area, traces)
}

// drawGrid draws grid lines with count and time labels.
func (r *scopeRenderer) drawGrid(a plotArea) {
	const numHLines, numVLines = 8, 10

	for i := range numHLines + 1 {
		y := a.y + float32(i)*a.h/numHLines
		r.addLine(gridColor, 1, fyne.NewPos(a.x, y), fyne.NewPos(a.x+a.w, y))

		value := a.yMax - float64(i)*(a.yMax-a.yMin)/numHLines
		text := canvas.NewText(formatCount(value), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(a.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	for i := range numVLines + 1 {
		x := a.x + float32(i)*a.w/numVLines
		r.addLine(gridColor, 1, fyne.NewPos(x, a.y), fyne.NewPos(x, a.y+a.h))

		offset := float64(i) * a.xSpan / numVLines
		text := canvas.NewText(formatSeconds(offset), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, a.y+a.h+5))
		r.objects = append(r.objects, text)
	}
}

// drawTrace draws one series as connected segments.
func (r *scopeRenderer) drawTrace(a plotArea, times []time.Time, tr trace) {
	n := min(len(times), len(tr.values))
	if n < 2 {
		return
	}
	prev := a.pos(times[0], tr.values[0])
	for i := 1; i < n; i++ {
		cur := a.pos(times[i], tr.values[i])
		r.addLine(tr.color, 1.5, prev, cur)
		prev = cur
	}
}

// drawMarkers draws a cross at every experiment average inside the window.
func (r *scopeRenderer) drawMarkers(a plotArea, markers []marker) {
	for _, m := range markers {
		if !a.contains(m.t) {
			continue
		}
		p := a.pos(m.t, m.v)
		r.addLine(markerColor, 2, fyne.NewPos(p.X-markerSize, p.Y-markerSize), fyne.NewPos(p.X+markerSize, p.Y+markerSize))
		r.addLine(markerColor, 2, fyne.NewPos(p.X-markerSize, p.Y+markerSize), fyne.NewPos(p.X+markerSize, p.Y-markerSize))
	}
}

// drawLegend writes the trace names in their colors.
func (r *scopeRenderer) drawLegend(a plotArea, traces []trace) {
	x := a.x + 10
	for _, tr := range traces {
		text := canvas.NewText(tr.name, tr.color)
		text.TextSize = 11
		text.TextStyle = fyne.TextStyle{Bold: true}
		text.Move(fyne.NewPos(x, a.y+5))
		r.objects = append(r.objects, text)
		x += 12 + float32(len(tr.name))*8
	}
}

func (r *scopeRenderer) addLine(c color.Color, width float32, p1, p2 fyne.Position) {
	line := canvas.NewLine(c)
	line.Position1 = p1
	line.Position2 = p2
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatCount(v float64) string {
	a := v
	if a < 0 {
		a = -a
	}
	switch {
	case a >= 1e6:
		return strconv.FormatFloat(v, 'e', 2, 64)
	case a >= 100:
		return strconv.FormatFloat(v, 'f', 0, 64)
	default:
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
}

func formatSeconds(s float64) string {
	if s < 1 {
		return strconv.FormatFloat(s, 'f', 2, 64) + "s"
	}
	return strconv.FormatFloat(s, 'f', 1, 64) + "s"
}
