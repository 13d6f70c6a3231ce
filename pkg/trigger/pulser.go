package trigger

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Pulser emits a single high pulse on a pin.
type Pulser struct {
	pin   Pin
	log   *logrus.Logger
	sleep func(time.Duration)
}

// NewPulser creates a pulser on pin. The pin stays owned by the caller.
func NewPulser(pin Pin, log *logrus.Logger) *Pulser {
	return &Pulser{pin: pin, log: log, sleep: time.Sleep}
}

// WithSleep replaces the wall clock sleep, for tests.
func (p *Pulser) WithSleep(sleep func(time.Duration)) *Pulser {
	p.sleep = sleep
	return p
}

// Pulse drives the pin high, waits d and drives it low again.
// The wait cannot be interrupted; the pin is driven low even if raising it failed.
func (p *Pulser) Pulse(d time.Duration) error {
	p.log.WithField("duration", d).Debug("trigger pulse")

	if err := p.pin.High(); err != nil {
		lowErr := p.pin.Low()
		if lowErr != nil {
			p.log.WithError(lowErr).Warn("failed to drive trigger low")
		}
		return errors.Wrap(err, "failed to drive trigger high")
	}

	p.sleep(d)

	return errors.Wrap(p.pin.Low(), "failed to drive trigger low")
}
