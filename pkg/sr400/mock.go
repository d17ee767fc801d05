package sr400

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/gosr400/pkg/config"
	"github.com/itohio/gosr400/pkg/reading"
)

// Mock simulates an SR400 for testing and development. Counts are drawn
// around RateA/RateB counts per second; every command is logged.
type Mock struct {
	cfg *config.MockConfig

	mu       sync.Mutex
	rng      *rand.Rand
	closed   bool
	commands []string

	periods int
	tset    float64
	last    map[Channel]float64
	buffer  []reading.Reading
}

// NewMock creates a new mocked counter.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	return &Mock{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		periods: 1,
		tset:    1,
		last:    make(map[Channel]float64),
	}
}

// Commands returns a copy of the commands received so far.
func (m *Mock) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.commands))
	copy(out, m.commands)
	return out
}

func (m *Mock) record(cmd string) error {
	if m.closed {
		return ErrNotConnected
	}
	m.commands = append(m.commands, cmd)
	return nil
}

func (m *Mock) do(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(cmd)
}

func (m *Mock) Reset() error { return m.do("CR") }
func (m *Mock) Start() error { return m.do("CS") }
func (m *Mock) Pause() error { return m.do("CH") }

func (m *Mock) SetPeriods(n int) error {
	if n < 1 || n > 2000 {
		return fmt.Errorf("periods %d not in [1, 2000]", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods = n
	return m.record(fmt.Sprintf("NP %d", n))
}

func (m *Mock) SetTset(seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tset = seconds
	return m.record(fmt.Sprintf("CP2,%d", Ticks(seconds)))
}

func (m *Mock) SetScanEnd(mode int) error {
	if mode != 0 && mode != 1 {
		return fmt.Errorf("invalid scan end mode %d", mode)
	}
	return m.do(fmt.Sprintf("NE %d", mode))
}

func (m *Mock) SetPortLevel(port int, volts float64) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if volts < -10 || volts > 10 {
		return fmt.Errorf("port level %g not in [-10, 10]", volts)
	}
	return m.do(fmt.Sprintf("PL %d,%s", port, formatVolts(volts)))
}

func (m *Mock) SetPortStep(port int, volts float64) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if volts < -0.5 || volts > 0.5 {
		return fmt.Errorf("port step %g not in [-0.5, 0.5]", volts)
	}
	return m.do(fmt.Sprintf("PY %d,%s", port, formatVolts(volts)))
}

func (m *Mock) SetPortMode(port, mode int) error {
	if err := checkPortMode(port, mode); err != nil {
		return err
	}
	return m.do(fmt.Sprintf("PM %d,%d", port, mode))
}

func (m *Mock) SetDwell(seconds float64) error {
	if seconds < 2e-3 || seconds > 60 {
		return fmt.Errorf("dwell %g not in [2E-3, 60]", seconds)
	}
	return m.do(fmt.Sprintf("DT %.1E", seconds))
}

// Dump returns up to n rows of the last run.
func (m *Mock) Dump(ch Channel, n int) ([]reading.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("E" + ch.String()); err != nil {
		return nil, err
	}
	if n > len(m.buffer) {
		n = len(m.buffer)
	}
	out := make([]reading.Reading, n)
	copy(out, m.buffer[:n])
	return out, nil
}

// QueryCount returns the last simulated count of a channel.
func (m *Mock) QueryCount(ch Channel) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Q" + ch.String()); err != nil {
		return 0, err
	}
	if v, ok := m.last[ch]; ok {
		return v, nil
	}
	return m.count(ch, m.tset), nil
}

func (m *Mock) NumPeriods() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("NN"); err != nil {
		return 0, err
	}
	return len(m.buffer), nil
}

// Acquire simulates one run, waiting RunDuration scaled by TimeScale.
func (m *Mock) Acquire(ctx context.Context, p RunParams) ([]reading.Reading, error) {
	if p.Periods < 1 || p.Periods > 2000 {
		return nil, fmt.Errorf("periods %d not in [1, 2000]", p.Periods)
	}
	if p.Channel == 0 {
		p.Channel = ChannelA
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cmd := range []string{fmt.Sprintf("CP2,%d", Ticks(p.Tset)), fmt.Sprintf("NP %d", p.Periods), "CR", "CS"} {
		if err := m.record(cmd); err != nil {
			return nil, err
		}
	}
	m.tset = p.Tset
	m.periods = p.Periods

	scale := m.cfg.TimeScale
	if scale <= 0 {
		scale = 1
	}
	start := time.Now()
	wait := time.Duration(float64(RunDuration(p.Tset, p.Periods)) * scale)
	if err := sleep(ctx, wait); err != nil {
		m.commands = append(m.commands, "CR")
		return nil, err
	}

	m.buffer = m.buffer[:0]
	for i := 0; i < p.Periods; i++ {
		a := m.count(ChannelA, p.Tset)
		b := m.count(ChannelB, p.Tset)
		m.last[ChannelA] = a
		m.last[ChannelB] = b
		m.buffer = append(m.buffer, reading.Reading{Timestamp: PeriodEnd(start, p.Tset, i), Values: []float64{a, b}})
	}
	m.last[ChannelT] = float64(Ticks(p.Tset))

	m.commands = append(m.commands, "E"+p.Channel.String(), "CR")

	out := make([]reading.Reading, len(m.buffer))
	copy(out, m.buffer)
	return out, nil
}

// count draws a count with Poisson-like spread around rate*tset.
func (m *Mock) count(ch Channel, tset float64) float64 {
	var rate float64
	switch ch {
	case ChannelA:
		rate = m.cfg.RateA
	case ChannelB:
		rate = m.cfg.RateB
	default:
		return float64(Ticks(tset))
	}
	mean := rate * tset
	v := math.Round(mean + m.rng.NormFloat64()*math.Sqrt(mean))
	if v < 0 {
		v = 0
	}
	return v
}

// Close stops the mocked counter.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
