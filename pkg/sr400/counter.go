package sr400

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotmc/query"
	"github.com/itohio/gosr400/pkg/reading"
)

const (
	// ClockHz is the frequency of the internal time base used by counter T.
	ClockHz = 1e7
	// MinTicks and MaxTicks bound a counter preset (CP).
	MinTicks = 1
	MaxTicks = 9e11
	// DefaultSettle is the pause after configuring a run, before CR/CS.
	DefaultSettle = 100 * time.Millisecond
)

var (
	// ErrNotConnected is returned when the counter has been closed.
	ErrNotConnected = errors.New("not connected")
	// ErrEmptyResponse is returned when a query yields an empty line.
	ErrEmptyResponse = errors.New("empty response")
)

// Port modes for SetPortMode.
const (
	PortFixed = 0
	PortScan  = 1
)

// Channel selects one of the counters.
type Channel byte

const (
	ChannelA Channel = 'A'
	ChannelB Channel = 'B'
	ChannelT Channel = 'T'
)

func (c Channel) String() string { return string(rune(c)) }

// ParseChannel parses "A", "B" or "T" (case insensitive).
func ParseChannel(s string) (Channel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return ChannelA, nil
	case "B":
		return ChannelB, nil
	case "T":
		return ChannelT, nil
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// Ticks converts seconds to counter T preset ticks of the 10 MHz time base.
func Ticks(seconds float64) int64 {
	t := math.Round(seconds * ClockHz)
	if t < MinTicks {
		return MinTicks
	}
	if t > MaxTicks {
		return MaxTicks
	}
	return int64(t)
}

// RunDuration is how long a run of n periods of tset seconds takes, with one
// extra period of margin for the counter to finish.
func RunDuration(tset float64, periods int) time.Duration {
	return time.Duration(tset * float64(periods+1) * float64(time.Second))
}

// PeriodEnd is when period i (from 0) of a run started at start ends.
func PeriodEnd(start time.Time, tset float64, i int) time.Time {
	return start.Add(time.Duration(tset * float64(i+1) * float64(time.Second)))
}

// Counter drives an SR400 over a Transport. All methods are safe for
// concurrent use; a run started with Acquire holds the instrument until it
// completes so other callers interleave only between runs.
type Counter struct {
	mu     sync.Mutex
	t      Transport
	debug  bool
	closed bool
}

// New creates a Counter over an open transport.
func New(t Transport) *Counter {
	return &Counter{t: t}
}

// SetDebug enables logging of every command sent.
func (c *Counter) SetDebug(debug bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debug = debug
}

// Command sends a raw command.
func (c *Counter) Command(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.command(cmd)
}

// Query sends a raw command and returns the trimmed response line.
func (c *Counter) Query(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query(cmd)
}

// Reset clears the counters (CR).
func (c *Counter) Reset() error { return c.Command("CR") }

// Start starts counting (CS).
func (c *Counter) Start() error { return c.Command("CS") }

// Pause stops counting (CH).
func (c *Counter) Pause() error { return c.Command("CH") }

// SetPeriods sets the number of periods in a scan (NP).
func (c *Counter) SetPeriods(n int) error {
	if n < 1 || n > 2000 {
		return fmt.Errorf("periods %d not in [1, 2000]", n)
	}
	return c.Command(fmt.Sprintf("NP %d", n))
}

// SetPreset sets the preset of counter i (CP). Counter 2 is T.
func (c *Counter) SetPreset(counter int, n int64) error {
	if counter < 0 || counter > 2 {
		return fmt.Errorf("invalid counter %d", counter)
	}
	if n < MinTicks || n > MaxTicks {
		return fmt.Errorf("preset %d not in [1, 9E11]", n)
	}
	return c.Command(fmt.Sprintf("CP%d,%d", counter, n))
}

// SetTset presets counter T to the given counting period in seconds.
func (c *Counter) SetTset(seconds float64) error {
	return c.SetPreset(2, Ticks(seconds))
}

// SetScanEnd sets the end of scan mode (NE): 0 stops, 1 starts over.
func (c *Counter) SetScanEnd(mode int) error {
	if mode != 0 && mode != 1 {
		return fmt.Errorf("invalid scan end mode %d", mode)
	}
	return c.Command(fmt.Sprintf("NE %d", mode))
}

// SetPortLevel sets the level of port 1 or 2 in volts (PL).
func (c *Counter) SetPortLevel(port int, volts float64) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if volts < -10 || volts > 10 {
		return fmt.Errorf("port level %g not in [-10, 10]", volts)
	}
	return c.Command(fmt.Sprintf("PL %d,%s", port, formatVolts(volts)))
}

// SetPortStep sets the scan step of port 1 or 2 in volts (PY).
func (c *Counter) SetPortStep(port int, volts float64) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if volts < -0.5 || volts > 0.5 {
		return fmt.Errorf("port step %g not in [-0.5, 0.5]", volts)
	}
	return c.Command(fmt.Sprintf("PY %d,%s", port, formatVolts(volts)))
}

// SetPortMode sets port 1 or 2 to PortFixed or PortScan (PM).
func (c *Counter) SetPortMode(port, mode int) error {
	if err := checkPortMode(port, mode); err != nil {
		return err
	}
	return c.Command(fmt.Sprintf("PM %d,%d", port, mode))
}

// SetDwell sets the dwell time between periods in seconds (DT).
func (c *Counter) SetDwell(seconds float64) error {
	if seconds < 2e-3 || seconds > 60 {
		return fmt.Errorf("dwell %g not in [2E-3, 60]", seconds)
	}
	return c.Command("DT " + strconv.FormatFloat(seconds, 'E', 1, 64))
}

// NumPeriods reads the current period number or scan position (NN).
func (c *Counter) NumPeriods() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return query.Int(unlocked{c}, "NN")
}

// QueryCount reads the last completed count of a channel (QA, QB, QT).
func (c *Counter) QueryCount(ch Channel) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, err := query.Float64(unlocked{c}, "Q"+ch.String())
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", "Q"+ch.String(), err)
	}
	return v, nil
}

// Dump reads n buffered periods of a channel (EA, EB, ET). The run they
// belong to is unknown, so rows carry the time they were read.
func (c *Counter) Dump(ch Channel, n int) ([]reading.Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dump(ch, n, time.Time{}, 0)
}

// Acquire runs one experiment: it presets T, sets the period count, starts
// counting, waits for the run to finish and reads the buffer of p.Channel.
// The instrument is held for the whole run. Cancelling ctx stops the wait,
// the counter is then reset and ctx.Err() returned.
func (c *Counter) Acquire(ctx context.Context, p RunParams) ([]reading.Reading, error) {
	if p.Periods < 1 || p.Periods > 2000 {
		return nil, fmt.Errorf("periods %d not in [1, 2000]", p.Periods)
	}
	if p.Channel == 0 {
		p.Channel = ChannelA
	}
	settle := p.Settle
	if settle == 0 {
		settle = DefaultSettle
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.command(fmt.Sprintf("CP2,%d", Ticks(p.Tset))); err != nil {
		return nil, err
	}
	if err := c.command(fmt.Sprintf("NP %d", p.Periods)); err != nil {
		return nil, err
	}
	if err := sleep(ctx, settle); err != nil {
		return nil, err
	}
	if err := c.command("CR"); err != nil {
		return nil, err
	}
	if err := c.command("CS"); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := sleep(ctx, RunDuration(p.Tset, p.Periods)); err != nil {
		if rerr := c.command("CR"); rerr != nil {
			log.Printf("Failed to reset counter after cancel: %v", rerr)
		}
		return nil, err
	}

	rows, err := c.dump(p.Channel, p.Periods, start, p.Tset)
	if err != nil {
		return rows, err
	}

	if err := c.command("CR"); err != nil {
		return rows, err
	}
	return rows, nil
}

// Close closes the transport. Further calls return ErrNotConnected.
func (c *Counter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.t.Close()
}

func (c *Counter) command(cmd string) error {
	if c.closed {
		return ErrNotConnected
	}
	if c.debug {
		log.Printf("cmd %q", cmd)
	}
	if err := c.t.WriteLine(cmd); err != nil {
		return fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	return nil
}

func (c *Counter) query(cmd string) (string, error) {
	if err := c.command(cmd); err != nil {
		return "", err
	}
	line, err := c.t.ReadLine()
	if err != nil {
		return "", fmt.Errorf("failed to read response to %q: %w", cmd, err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%q: %w", cmd, ErrEmptyResponse)
	}
	return line, nil
}

// dump reads n periods of ch. Rows are stamped with the end of their period
// counted from start, or with the read time when start is zero.
func (c *Counter) dump(ch Channel, n int, start time.Time, tset float64) ([]reading.Reading, error) {
	if err := c.command("E" + ch.String()); err != nil {
		return nil, err
	}

	rows := make([]reading.Reading, 0, n)
	for i := 0; i < n; i++ {
		line, err := c.t.ReadLine()
		if err != nil {
			return rows, fmt.Errorf("failed to read period %d of %d: %w", i+1, n, err)
		}
		if strings.TrimSpace(line) == "" {
			log.Printf("Empty line in dump of %s at period %d", ch, i+1)
			continue
		}
		r, err := reading.Parse(line, reading.Comma)
		if err != nil {
			return rows, err
		}
		if start.IsZero() {
			r.Timestamp = time.Now()
		} else {
			r.Timestamp = PeriodEnd(start, tset, i)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// unlocked lets typed query helpers run while the caller holds c.mu.
type unlocked struct{ c *Counter }

func (u unlocked) Query(cmd string) (string, error) { return u.c.query(cmd) }

func checkPort(port int) error {
	if port != 1 && port != 2 {
		return fmt.Errorf("invalid port %d", port)
	}
	return nil
}

func checkPortMode(port, mode int) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if mode != PortFixed && mode != PortScan {
		return fmt.Errorf("port mode %d must be %d or %d", mode, PortFixed, PortScan)
	}
	return nil
}

func formatVolts(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
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
