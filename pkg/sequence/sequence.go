// Package sequence runs the coordinated scan: the waveform generator sweeps
// the sample while the SR400 steps port 1 forward and back once per cycle.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itohio/gosr400/pkg/config"
	"github.com/itohio/gosr400/pkg/param"
	"github.com/itohio/gosr400/pkg/sr400"
	"go.uber.org/multierr"
)

// Generator is the part of the waveform generator the sequence drives.
type Generator interface {
	EnableOutput(ctx context.Context, on bool) error
	SetWaveform(ctx context.Context, n int) error
	SetFrequency(ctx context.Context, hz int64) error
	SetStatic(ctx context.Context, v int64) error
	SetRamp(ctx context.Context, v int64) error
	SetOffset(ctx context.Context, v int64) error
}

// StaticMode is written to the static register during setup.
const StaticMode = 18

// Timing holds the fixed waits of a cycle.
type Timing struct {
	PresetSettle  time.Duration // after CP2, before reading back the generator rate
	ForwardScan   time.Duration // forward scan duration
	ReverseSettle time.Duration // after programming the reverse scan
	ReverseScan   time.Duration // reverse scan duration
}

// DefaultTiming matches the instrument's scan at the default Tset.
var DefaultTiming = Timing{
	PresetSettle:  20 * time.Millisecond,
	ForwardScan:   1050 * time.Millisecond,
	ReverseSettle: 100 * time.Millisecond,
	ReverseScan:   1200 * time.Millisecond,
}

// Params are the parameters of one coordinated scan.
type Params struct {
	Hz         int
	Wavefront  int
	Cycles     int
	InnerSleep time.Duration // delay after each generator ramp command
	RampSteps  int
	Tset       float64 // s
	Dwell      float64 // s
	Level      float64 // V
	Step       float64 // V
	RampStart  int     // first w17 value
	Offset     int     // first w18 value
	Timing     Timing
}

// FromConfig builds scan parameters from the configuration.
func FromConfig(c config.ScanConfig) Params {
	return Params{
		Hz:         c.Hz,
		Wavefront:  c.Wavefront,
		Cycles:     c.Cycles,
		InnerSleep: c.InnerSleep,
		RampSteps:  c.RampSteps,
		Tset:       c.Tset,
		Dwell:      c.Dwell,
		Level:      c.Level,
		Step:       c.Step,
		RampStart:  c.RampStart,
		Offset:     c.Offset,
		Timing:     DefaultTiming,
	}
}

// Validate checks the parameters against the instrument ranges.
func (p Params) Validate() error {
	var err error
	err = multierr.Append(err, param.HzRange.Check(p.Hz))
	err = multierr.Append(err, param.CyclesRange.Check(p.Cycles))
	err = multierr.Append(err, param.TsetRange.Check(p.Tset))
	err = multierr.Append(err, param.DwellRange.Check(p.Dwell))
	err = multierr.Append(err, param.LevelRange.Check(p.Level))
	err = multierr.Append(err, param.StepRange.Check(p.Step))
	err = multierr.Append(err, param.InnerSleepRange.Check(p.InnerSleep.Seconds()))
	if p.RampSteps < 1 {
		err = multierr.Append(err, fmt.Errorf("ramp steps %d must be positive: %w", p.RampSteps, param.ErrOutOfRange))
	}
	if end := p.ReverseLevel(); end < param.MinLevel || end > param.MaxLevel {
		err = multierr.Append(err, fmt.Errorf("reverse scan level %g not in [%g, %g]: %w", end, param.MinLevel, param.MaxLevel, param.ErrOutOfRange))
	}
	return err
}

// ReverseLevel is the port level where the reverse scan starts.
func (p Params) ReverseLevel() float64 {
	return p.Level + float64(p.RampSteps-1)*p.Step
}

// ScanFrequency is the generator rate that matches one counter period of
// tset plus dwell.
func ScanFrequency(tset, dwell float64) int64 {
	period := sr400.Ticks(tset) + int64(dwell*sr400.ClockHz)
	if period <= 0 {
		return 0
	}
	return int64(1e10) / period
}

// Logf receives progress messages.
type Logf func(format string, args ...any)

// Run executes the scan. It returns ctx.Err() when cancelled between
// commands. The generator output is switched off on every exit path.
func Run(ctx context.Context, gen Generator, dev sr400.Device, p Params, logf Logf) (err error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if err := p.Validate(); err != nil {
		return err
	}

	defer func() {
		logf("Disabling generator output")
		off := gen.EnableOutput(context.Background(), false)
		err = multierr.Append(err, off)
		if err == nil {
			logf("Sequence completed")
		} else if errors.Is(err, context.Canceled) {
			logf("Sequence stopped")
		}
	}()

	logf("Starting sequence")
	if err := setupGenerator(ctx, gen, p); err != nil {
		return err
	}
	if err := setupCounter(ctx, gen, dev, p, logf); err != nil {
		return err
	}

	offset := int64(p.Offset)
	for cycle := 0; cycle < p.Cycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		logf("Cycle %d / %d", cycle+1, p.Cycles)

		if err := ramp(ctx, gen, p, offset, true); err != nil {
			return err
		}
		offset++
		if err := ramp(ctx, gen, p, offset, false); err != nil {
			return err
		}
		offset++

		if err := scan(ctx, dev, p); err != nil {
			return err
		}
	}
	return nil
}

func setupGenerator(ctx context.Context, gen Generator, p Params) error {
	if err := gen.SetFrequency(ctx, int64(p.Hz)); err != nil {
		return err
	}
	if err := gen.SetStatic(ctx, StaticMode); err != nil {
		return err
	}
	if err := gen.EnableOutput(ctx, true); err != nil {
		return err
	}
	return gen.SetWaveform(ctx, p.Wavefront)
}

func setupCounter(ctx context.Context, gen Generator, dev sr400.Device, p Params, logf Logf) error {
	if err := dev.Reset(); err != nil {
		return err
	}
	if err := dev.SetTset(p.Tset); err != nil {
		return err
	}
	if err := sleep(ctx, p.Timing.PresetSettle); err != nil {
		return err
	}

	hz := ScanFrequency(p.Tset, p.Dwell)
	logf("Generator rate %d", hz)
	if err := gen.SetFrequency(ctx, hz); err != nil {
		return err
	}
	if err := dev.SetPeriods(p.Cycles); err != nil {
		return err
	}
	return dev.SetScanEnd(0)
}

// ramp sets w18 to offset and walks w17 through RampSteps values, upwards
// from RampStart or downwards to it.
func ramp(ctx context.Context, gen Generator, p Params, offset int64, up bool) error {
	if err := gen.SetOffset(ctx, offset); err != nil {
		return err
	}
	if err := sleep(ctx, p.InnerSleep); err != nil {
		return err
	}

	first, last := int64(p.RampStart), int64(p.RampStart+p.RampSteps-1)
	for i := int64(0); i < int64(p.RampSteps); i++ {
		v := first + i
		if !up {
			v = last - i
		}
		if err := gen.SetRamp(ctx, v); err != nil {
			return fmt.Errorf("ramp at %d: %w", v, err)
		}
		if err := sleep(ctx, p.InnerSleep); err != nil {
			return err
		}
	}
	return sleep(ctx, p.InnerSleep)
}

// scan runs the counter forward, then backward, then parks port 1.
func scan(ctx context.Context, dev sr400.Device, p Params) error {
	if err := dev.SetPortLevel(1, p.Level); err != nil {
		return err
	}
	if err := dev.SetPortStep(1, p.Step); err != nil {
		return err
	}
	if err := dev.Start(); err != nil {
		return err
	}
	if err := sleep(ctx, p.Timing.ForwardScan); err != nil {
		return err
	}

	if err := dev.SetPortLevel(1, p.ReverseLevel()); err != nil {
		return err
	}
	if err := dev.SetPortStep(1, -p.Step); err != nil {
		return err
	}
	if err := sleep(ctx, p.Timing.ReverseSettle); err != nil {
		return err
	}
	if err := dev.Reset(); err != nil {
		return err
	}
	if err := dev.Start(); err != nil {
		return err
	}
	if err := sleep(ctx, p.Timing.ReverseScan); err != nil {
		return err
	}

	if err := dev.SetPortLevel(1, p.Level); err != nil {
		return err
	}
	return dev.Reset()
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
