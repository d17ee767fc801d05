package acquire

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/itohio/gosr400/pkg/sr400"
)

// DefaultPollInterval is the QA/QB polling period.
const DefaultPollInterval = time.Second

// Poller periodically queries the last count of some channels. Queries wait
// for the instrument while an experiment holds it, so Start and Stop never
// wait for a query in flight; Wait does.
type Poller struct {
	dev      sr400.Device
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a stopped poller.
func NewPoller(dev sr400.Device, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{dev: dev, interval: interval}
}

// Start polls channels and reports every value to update. A running poller
// is restarted with the new channels. No channels stops it.
func (p *Poller) Start(update func(ch sr400.Channel, v float64), channels ...sr400.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if len(channels) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	interval := p.interval
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, interval, update, channels)
	}()
}

// SetInterval changes the polling period from the next Start.
func (p *Poller) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = interval
}

// Stop stops polling. A query already waiting for the instrument finishes in
// the background and its value is dropped.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Wait blocks until every polling goroutine has exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) run(ctx context.Context, interval time.Duration, update func(sr400.Channel, float64), channels []sr400.Channel) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, ch := range channels {
			if ctx.Err() != nil {
				return
			}
			v, err := p.dev.QueryCount(ch)
			if err != nil {
				if errors.Is(err, sr400.ErrNotConnected) {
					return
				}
				log.Printf("Failed to poll Q%s: %v", ch, err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			update(ch, v)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
