package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/itohio/gosr400/pkg/reading"
	"github.com/itohio/gosr400/pkg/sr400"
)

// DeviceSource runs a session of experiments on the counter. Each experiment
// is one Acquire; the instrument is free for pollers during Pause.
type DeviceSource struct {
	Device      sr400.Device
	Params      sr400.RunParams
	Experiments int
	Pause       time.Duration
}

// Run acquires Experiments runs, sending the rows of every run and then its
// Experiment event.
func (s *DeviceSource) Run(ctx context.Context, out chan<- reading.Reading, emit func(Event)) error {
	if s.Experiments < 1 {
		return fmt.Errorf("experiments %d must be positive", s.Experiments)
	}

	var x reading.RunningMean
	for i := 1; i <= s.Experiments; i++ {
		rows, err := s.Device.Acquire(ctx, s.Params)
		if err != nil {
			return fmt.Errorf("experiment %d of %d: %w", i, s.Experiments, err)
		}

		avgA, okA := reading.ChannelMean(rows, 0)
		avgB, okB := reading.ChannelMean(rows, 1)
		v := ExperimentValue(avgA, okA, avgB, okB)

		for _, r := range rows {
			if err := send(ctx, out, r); err != nil {
				return err
			}
		}

		emit(Event{
			Kind:  Experiment,
			Time:  time.Now(),
			Index: i,
			Total: s.Experiments,
			AvgA:  avgA,
			AvgB:  avgB,
			Value: v,
			X:     x.Add(v),
		})

		if i < s.Experiments {
			if err := sleep(ctx, s.Pause); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExperimentValue combines the channel averages of one experiment: the mean
// of the channels that were present, 0 when none were.
func ExperimentValue(avgA float64, okA bool, avgB float64, okB bool) float64 {
	switch {
	case okA && okB:
		return (avgA + avgB) / 2
	case okA:
		return avgA
	case okB:
		return avgB
	}
	return 0
}
