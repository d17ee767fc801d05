// Package param validates the numeric fields entered by the operator.
//
// Every validator trims surrounding whitespace, rejects non-numeric text with
// ErrNotNumber and values outside the instrument's range with ErrOutOfRange.
package param

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrNotNumber is returned when the text is not a number.
	ErrNotNumber = errors.New("not a number")
	// ErrOutOfRange is returned when the value is outside the allowed range.
	ErrOutOfRange = errors.New("out of range")
)

// Instrument limits.
const (
	MinTset        = 1e-9
	MaxTset        = 1e2
	MinPeriods     = 1
	MaxPeriods     = 2000
	MinExperiments = 1
	MaxExperiments = 1000
	MinLevel       = -10.0
	MaxLevel       = 10.0
	MinStep        = -0.5
	MaxStep        = 0.5
	MinDwell       = 2e-3
	MaxDwell       = 60.0
	MaxCycles      = 2000
	MaxHz          = 1000000
	MaxInnerSleep  = 10.0
)

// FloatRange describes an inclusive range of floats.
type FloatRange struct {
	Name     string
	Min, Max float64
}

// IntRange describes an inclusive range of integers.
type IntRange struct {
	Name     string
	Min, Max int
}

// Ranges of the operator-facing fields.
var (
	TsetRange        = FloatRange{Name: "Tset", Min: MinTset, Max: MaxTset}
	LevelRange       = FloatRange{Name: "scan level", Min: MinLevel, Max: MaxLevel}
	StepRange        = FloatRange{Name: "scan step", Min: MinStep, Max: MaxStep}
	DwellRange       = FloatRange{Name: "dwell", Min: MinDwell, Max: MaxDwell}
	InnerSleepRange  = FloatRange{Name: "inner sleep", Min: 0, Max: MaxInnerSleep}
	PeriodsRange     = IntRange{Name: "periods", Min: MinPeriods, Max: MaxPeriods}
	ExperimentsRange = IntRange{Name: "experiments", Min: MinExperiments, Max: MaxExperiments}
	CyclesRange      = IntRange{Name: "cycles", Min: 1, Max: MaxCycles}
	HzRange          = IntRange{Name: "frequency", Min: 1, Max: MaxHz}
	ScanEndRange     = IntRange{Name: "scan end mode", Min: 0, Max: 1}
)

// Parse parses s as a float and checks it against the range.
func (r FloatRange) Parse(s string) (float64, error) {
	v, err := ParseFloat(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", r.Name, err)
	}
	if err := r.Check(v); err != nil {
		return 0, err
	}
	return v, nil
}

// Check reports whether v is inside the range.
func (r FloatRange) Check(v float64) error {
	if math.IsNaN(v) || v < r.Min || v > r.Max {
		return fmt.Errorf("%s %g not in [%g, %g]: %w", r.Name, v, r.Min, r.Max, ErrOutOfRange)
	}
	return nil
}

// Parse parses s as an integer and checks it against the range.
func (r IntRange) Parse(s string) (int, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q: %w", r.Name, s, ErrNotNumber)
	}
	if err := r.Check(v); err != nil {
		return 0, err
	}
	return v, nil
}

// Check reports whether v is inside the range.
func (r IntRange) Check(v int) error {
	if v < r.Min || v > r.Max {
		return fmt.Errorf("%s %d not in [%d, %d]: %w", r.Name, v, r.Min, r.Max, ErrOutOfRange)
	}
	return nil
}

// ParseFloat parses plain, exponent ("1e-3") and product ("8*1e-3") notation.
// NaN and infinities are rejected.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value: %w", ErrNotNumber)
	}

	v := 1.0
	for _, part := range strings.Split(s, "*") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%q: %w", s, ErrNotNumber)
		}
		v *= f
	}
	if math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q: %w", s, ErrOutOfRange)
	}
	return v, nil
}

// Tset validates the counting period in seconds.
func Tset(s string) (float64, error) { return TsetRange.Parse(s) }

// Periods validates the number of periods per run (NP).
func Periods(s string) (int, error) { return PeriodsRange.Parse(s) }

// Experiments validates the number of experiments per session (M).
func Experiments(s string) (int, error) { return ExperimentsRange.Parse(s) }

// ScanLevel validates a port level in volts (PL).
func ScanLevel(s string) (float64, error) { return LevelRange.Parse(s) }

// ScanStep validates a port scan step in volts (PY).
func ScanStep(s string) (float64, error) { return StepRange.Parse(s) }

// Dwell validates the dwell time in seconds (DT).
func Dwell(s string) (float64, error) { return DwellRange.Parse(s) }

// Cycles validates the number of scan cycles.
func Cycles(s string) (int, error) { return CyclesRange.Parse(s) }

// Hz validates the generator frequency.
func Hz(s string) (int, error) { return HzRange.Parse(s) }

// InnerSleep validates the generator ramp step delay in seconds.
func InnerSleep(s string) (float64, error) { return InnerSleepRange.Parse(s) }

// ScanEnd validates the scan end mode (NE): 0 stops, 1 restarts.
func ScanEnd(s string) (int, error) { return ScanEndRange.Parse(s) }

// Partial wraps a validator for use while the operator is typing: an empty
// field is accepted, anything else must pass the validator.
func Partial[T any](validate func(string) (T, error)) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		_, err := validate(s)
		return err
	}
}
