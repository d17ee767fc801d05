// Package acquire runs data sources in the background and feeds their rows
// into a FIFO queue drained by the display.
package acquire

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/itohio/gosr400/pkg/reading"
)

const (
	// DefaultQueueSize is the capacity of the row queue.
	DefaultQueueSize = 2000
	// eventBufferSize bounds undelivered events; further events are dropped.
	eventBufferSize = 64
)

// ErrRunning is returned by Start while a source is running.
var ErrRunning = errors.New("acquisition already running")

// Worker owns the goroutine running a Source. Rows go to Queue, progress to
// Events.
type Worker struct {
	queue  chan reading.Reading
	events chan Event

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates an idle worker with a queue of the given capacity.
func NewWorker(queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Worker{
		queue:  make(chan reading.Reading, queueSize),
		events: make(chan Event, eventBufferSize),
	}
}

// Queue returns the receive side of the row queue.
func (w *Worker) Queue() <-chan reading.Reading { return w.queue }

// Events returns worker events.
func (w *Worker) Events() <-chan Event { return w.events }

// Running reports whether a source is running.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Start runs src in a new goroutine. It returns ErrRunning if a source is
// already running.
func (w *Worker) Start(src Source) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done

	w.emit(Event{Kind: Started, Time: time.Now()})
	go w.run(ctx, src, done)
	return nil
}

// Stop cancels the running source. A read already in progress on the
// instrument completes first. Use Wait to block until the goroutine exits.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

// Wait blocks until the current run has exited.
func (w *Worker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *Worker) run(ctx context.Context, src Source, done chan struct{}) {
	defer close(done)

	err := src.Run(ctx, w.queue, w.emit)

	w.mu.Lock()
	w.cancel()
	w.cancel = nil
	w.mu.Unlock()

	e := Event{Time: time.Now()}
	switch {
	case err == nil:
		e.Kind = Completed
	case errors.Is(err, context.Canceled):
		e.Kind = Stopped
	default:
		log.Printf("Acquisition failed: %v", err)
		e.Kind = Failed
		e.Err = err
	}
	w.emit(e)
}

func (w *Worker) emit(e Event) {
	select {
	case w.events <- e:
	default:
		log.Printf("Dropping %s event: event buffer full", e.Kind)
	}
}
