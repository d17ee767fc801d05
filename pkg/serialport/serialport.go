// Package serialport opens serial ports shared by the counter and the
// generator links.
package serialport

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/cenkalti/backoff"
	"go.bug.st/serial"
	"go.uber.org/multierr"
)

const (
	// DefaultReadTimeout bounds a single read.
	DefaultReadTimeout = 2 * time.Second
	// DefaultOpenTimeout bounds the retries when opening a port.
	DefaultOpenTimeout = 3 * time.Second
)

// Info describes an available serial port.
type Info struct {
	Name        string
	Description string
}

// List returns the available serial ports.
func List() ([]Info, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Info, 0, len(names))
	for _, name := range names {
		result = append(result, Info{Name: name, Description: name})
	}
	return result, nil
}

// Open opens name, retrying transient failures such as a busy port with
// exponential backoff for at most openTimeout. A missing port fails at once.
// Zero timeouts use the defaults.
func Open(name string, baudRate int, readTimeout, openTimeout time.Duration) (serial.Port, error) {
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}

	var port serial.Port
	op := func() error {
		p, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
		if err != nil {
			if Permanent(err) {
				return backoff.Permanent(err)
			}
			log.Printf("Opening %s failed, retrying: %v", name, err)
			return err
		}
		port = p
		return nil
	}

	if err := backoff.Retry(op, Backoff(openTimeout)); err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, multierr.Append(
			fmt.Errorf("failed to set read timeout on %s: %w", name, err),
			port.Close(),
		)
	}

	return port, nil
}

// Backoff returns the retry schedule used by Open.
func Backoff(openTimeout time.Duration) *backoff.ExponentialBackOff {
	if openTimeout == 0 {
		openTimeout = DefaultOpenTimeout
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         time.Second,
		MaxElapsedTime:      openTimeout,
		Clock:               backoff.SystemClock,
	}
}

// Permanent reports whether retrying the open cannot help. On unix a missing
// device surfaces as ENOENT rather than PortNotFound.
func Permanent(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var perr *serial.PortError
	if !errors.As(err, &perr) {
		return false
	}
	switch perr.Code() {
	case serial.PortNotFound, serial.InvalidSerialPort, serial.PermissionDenied:
		return true
	}
	return false
}
