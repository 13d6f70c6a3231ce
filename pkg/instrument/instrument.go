// Package instrument carries SCPI commands to a bench instrument over
// USB-TMC, a serial line, or a simulated DS1000E oscilloscope.
package instrument

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/buckbench/pkg/config"
)

// ErrTimeout is returned when the instrument does not answer in time.
var ErrTimeout = errors.New("instrument response timeout")

// Instrument is a SCPI command/query channel to one instrument.
type Instrument interface {
	// Write sends a command that produces no response.
	Write(ctx context.Context, cmd string) error
	// Ask sends a query and returns the raw response bytes.
	Ask(ctx context.Context, cmd string) ([]byte, error)
	Close() error
}

// Ensure USBTMC implements Instrument.
var _ Instrument = (*USBTMC)(nil)

// Ensure Serial implements Instrument.
var _ Instrument = (*Serial)(nil)

// Ensure Mock implements Instrument.
var _ Instrument = (*Mock)(nil)

// Open opens the instrument selected by cfg.Transport.
func Open(cfg *config.Config, log *logrus.Logger) (Instrument, error) {
	switch cfg.Scope.Transport {
	case config.TransportUSBTMC:
		return OpenUSBTMC(cfg.Scope.VendorID, cfg.Scope.ProductID, cfg.Scope.Timeout, log)
	case config.TransportSerial:
		return OpenSerial(cfg.Scope.SerialPort, cfg.Scope.BaudRate, cfg.Scope.Timeout)
	case config.TransportMock:
		return NewMock(&cfg.Mock), nil
	default:
		return nil, errors.Errorf("unknown scope transport %q", cfg.Scope.Transport)
	}
}
