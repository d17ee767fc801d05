package sr400

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gotmc/prologix"
	"github.com/itohio/gosr400/pkg/serialport"
	"go.bug.st/serial"
	"go.uber.org/multierr"
)

const (
	// DefaultBaudRate is the SR400 RS-232 default.
	DefaultBaudRate = 9600
	// DefaultReadTimeout bounds a single response line.
	DefaultReadTimeout = serialport.DefaultReadTimeout
	// DefaultOpenTimeout bounds the retries when opening a port.
	DefaultOpenTimeout = serialport.DefaultOpenTimeout
)

// ErrTimeout is returned when no response arrives within the read timeout.
var ErrTimeout = errors.New("read timeout")

// Transport moves command lines to the counter and response lines back.
type Transport interface {
	WriteLine(cmd string) error
	ReadLine() (string, error)
	Close() error
}

// Port represents a serial port.
type Port = serialport.Info

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	return serialport.List()
}

// streamTransport speaks newline terminated ASCII over a byte stream.
type streamTransport struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader
}

// NewStreamTransport wraps any byte stream, e.g. an open serial port or a
// test pipe.
func NewStreamTransport(rwc io.ReadWriteCloser) Transport {
	return &streamTransport{
		rwc: rwc,
		r:   bufio.NewReader(timeoutReader{rwc}),
	}
}

func (t *streamTransport) WriteLine(cmd string) error {
	_, err := io.WriteString(t.rwc, strings.TrimRight(cmd, "\r\n")+"\n")
	return err
}

func (t *streamTransport) ReadLine() (string, error) {
	line, err := t.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *streamTransport) Close() error {
	return t.rwc.Close()
}

// timeoutReader turns the (0, nil) result of a serial read timeout into
// ErrTimeout so bufio does not spin on it.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}

// gpibTransport talks to the counter through a Prologix GPIB-USB controller.
type gpibTransport struct {
	rwc  io.ReadWriteCloser
	ctrl *prologix.Controller
	r    *bufio.Reader
}

// NewGPIBTransport configures the Prologix controller behind rwc for the
// instrument at addr and clears the instrument.
func NewGPIBTransport(rwc io.ReadWriteCloser, addr int) (Transport, error) {
	ctrl, err := prologix.NewController(rwc, addr, true)
	if err != nil {
		return nil, fmt.Errorf("failed to configure GPIB controller: %w", err)
	}
	return &gpibTransport{
		rwc:  rwc,
		ctrl: ctrl,
		r:    bufio.NewReader(timeoutReader{rwc}),
	}, nil
}

func (t *gpibTransport) WriteLine(cmd string) error {
	return t.ctrl.Command("%s", strings.TrimSpace(cmd))
}

func (t *gpibTransport) ReadLine() (string, error) {
	// auto is off, so each response line must be requested explicitly.
	if err := t.ctrl.CommandController("read eoi"); err != nil {
		return "", fmt.Errorf("failed to request read: %w", err)
	}
	line, err := t.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *gpibTransport) Close() error {
	// Return the instrument to front panel control before letting go.
	return multierr.Append(
		t.ctrl.CommandController("loc"),
		t.rwc.Close(),
	)
}

// OpenSerial opens the counter's RS-232 port, retrying transient failures
// with exponential backoff for at most openTimeout.
func OpenSerial(name string, baudRate int, readTimeout, openTimeout time.Duration) (Transport, error) {
	port, err := openPort(name, baudRate, readTimeout, openTimeout)
	if err != nil {
		return nil, err
	}
	return NewStreamTransport(port), nil
}

// OpenGPIB opens a Prologix controller on the given serial port and
// addresses the counter at addr.
func OpenGPIB(name string, baudRate, addr int, readTimeout, openTimeout time.Duration) (Transport, error) {
	port, err := openPort(name, baudRate, readTimeout, openTimeout)
	if err != nil {
		return nil, err
	}

	t, err := NewGPIBTransport(port, addr)
	if err != nil {
		return nil, multierr.Append(
			fmt.Errorf("%s: %w", name, err),
			port.Close(),
		)
	}
	return t, nil
}

func openPort(name string, baudRate int, readTimeout, openTimeout time.Duration) (serial.Port, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return serialport.Open(name, baudRate, readTimeout, openTimeout)
}
