package sr400

import (
	"fmt"

	"github.com/itohio/gosr400/pkg/config"
)

// Open connects to the counter described by cfg. The mock transport ignores
// the port settings.
func Open(cfg *config.Config) (Device, error) {
	in := cfg.Instrument

	var (
		t   Transport
		err error
	)
	switch in.Transport {
	case config.TransportMock:
		return NewMock(&cfg.Mock), nil
	case config.TransportGPIB:
		t, err = OpenGPIB(in.Port, in.BaudRate, in.GPIBAddress, in.ReadTimeout, in.OpenTimeout)
	case config.TransportSerial, "":
		t, err = OpenSerial(in.Port, in.BaudRate, in.ReadTimeout, in.OpenTimeout)
	default:
		return nil, fmt.Errorf("unknown transport %q", in.Transport)
	}
	if err != nil {
		return nil, err
	}

	c := New(t)
	c.SetDebug(in.Debug)
	return c, nil
}
