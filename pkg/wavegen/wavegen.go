// Package wavegen drives the serial waveform generator that sweeps the
// sample. Commands look like ":w13=1,0." and are not acknowledged.
package wavegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/itohio/gosr400/pkg/serialport"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
)

// Registers.
const (
	RegOutput    = 10 // 1,0 enables output, 0,0 disables
	RegWaveform1 = 11
	RegWaveform2 = 12
	RegFrequency = 13 // Hz
	RegStatic    = 14
	RegRamp      = 17
	RegOffset    = 18
)

const (
	// DefaultBaudRate of the generator link.
	DefaultBaudRate = 115200
	// DefaultDelay is the minimum spacing between two commands.
	DefaultDelay = 2 * time.Millisecond
)

// ErrNotConnected is returned after Close.
var ErrNotConnected = errors.New("generator not connected")

// Generator writes paced commands to the generator.
type Generator struct {
	mu      sync.Mutex
	w       io.Writer
	limiter *rate.Limiter
	debug   bool
	closed  bool
}

// New creates a generator writing to w. Commands are spaced at least delay
// apart. If w is an io.Closer it is closed by Close.
func New(w io.Writer, delay time.Duration) *Generator {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Generator{
		w:       w,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Open opens the generator's serial port, retrying transient failures for at
// most openTimeout. A missing port fails at once.
func Open(port string, baudRate int, delay, openTimeout time.Duration) (*Generator, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	p, err := serialport.Open(port, baudRate, 0, openTimeout)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}

	return New(p, delay), nil
}

// SetDebug enables logging of every command sent.
func (g *Generator) SetDebug(debug bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.debug = debug
}

// Set writes ":wNN=value." to a register.
func (g *Generator) Set(ctx context.Context, reg int, value int64) error {
	return g.send(ctx, fmt.Sprintf(":w%d=%s.", reg, strconv.FormatInt(value, 10)))
}

// SetFlag writes ":wNN=value,flag." to a register.
func (g *Generator) SetFlag(ctx context.Context, reg int, value, flag int64) error {
	return g.send(ctx, fmt.Sprintf(":w%d=%d,%d.", reg, value, flag))
}

// EnableOutput switches the output on or off.
func (g *Generator) EnableOutput(ctx context.Context, on bool) error {
	if on {
		return g.SetFlag(ctx, RegOutput, 1, 0)
	}
	return g.SetFlag(ctx, RegOutput, 0, 0)
}

// SetWaveform selects the wavefront on both channels.
func (g *Generator) SetWaveform(ctx context.Context, n int) error {
	if err := g.Set(ctx, RegWaveform2, int64(n)); err != nil {
		return err
	}
	return g.Set(ctx, RegWaveform1, int64(n))
}

// SetFrequency sets the output frequency in Hz.
func (g *Generator) SetFrequency(ctx context.Context, hz int64) error {
	return g.SetFlag(ctx, RegFrequency, hz, 0)
}

// SetStatic sets the static register.
func (g *Generator) SetStatic(ctx context.Context, v int64) error {
	return g.SetFlag(ctx, RegStatic, v, 0)
}

// SetRamp sets the ramp register.
func (g *Generator) SetRamp(ctx context.Context, v int64) error {
	return g.Set(ctx, RegRamp, v)
}

// SetOffset sets the offset register.
func (g *Generator) SetOffset(ctx context.Context, v int64) error {
	return g.Set(ctx, RegOffset, v)
}

// Close disables the output and closes the underlying writer.
func (g *Generator) Close() error {
	// The output must go off even if the run was cancelled.
	err := g.EnableOutput(context.Background(), false)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if errors.Is(err, ErrNotConnected) {
		err = nil
	}
	if c, ok := g.w.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (g *Generator) send(ctx context.Context, cmd string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrNotConnected
	}
	if g.debug {
		log.Printf("gen %q", cmd)
	}
	if _, err := io.WriteString(g.w, cmd+"\r\n"); err != nil {
		return fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	return nil
}
