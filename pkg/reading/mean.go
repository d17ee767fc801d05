package reading

// RunningMean accumulates a mean incrementally: x += (v - x) / n.
type RunningMean struct {
	n    int
	mean float64
}

// Add folds v into the mean and returns the updated mean.
func (m *RunningMean) Add(v float64) float64 {
	m.n++
	m.mean += (v - m.mean) / float64(m.n)
	return m.mean
}

// Mean returns the current mean, 0 when empty.
func (m *RunningMean) Mean() float64 { return m.mean }

// N returns the number of values folded in.
func (m *RunningMean) N() int { return m.n }

// Reset clears the accumulator.
func (m *RunningMean) Reset() { *m = RunningMean{} }

// Mean returns the arithmetic mean of xs, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// ChannelMean averages channel i over rows that carry it. ok is false when no
// row has channel i.
func ChannelMean(rows []Reading, i int) (mean float64, ok bool) {
	var m RunningMean
	for _, r := range rows {
		if v, present := r.Value(i); present {
			m.Add(v)
		}
	}
	return m.Mean(), m.N() > 0
}
