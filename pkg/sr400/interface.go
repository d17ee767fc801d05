package sr400

import (
	"context"
	"time"

	"github.com/itohio/gosr400/pkg/reading"
)

// RunParams describes one acquisition run.
type RunParams struct {
	Channel Channel
	Tset    float64       // counting period (s)
	Periods int           // NP
	Settle  time.Duration // delay after configuring, before CR/CS
}

// Device defines the interface for SR400 counters (real or mocked).
type Device interface {
	Reset() error
	Start() error
	Pause() error
	SetPeriods(n int) error
	SetTset(seconds float64) error
	SetScanEnd(mode int) error
	SetPortLevel(port int, volts float64) error
	SetPortStep(port int, volts float64) error
	SetPortMode(port, mode int) error
	SetDwell(seconds float64) error
	Dump(ch Channel, n int) ([]reading.Reading, error)
	QueryCount(ch Channel) (float64, error)
	NumPeriods() (int, error)
	Acquire(ctx context.Context, p RunParams) ([]reading.Reading, error)
	Close() error
}

var _ Device = (*Counter)(nil)

var _ Device = (*Mock)(nil)
