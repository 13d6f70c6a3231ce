// Package bench runs one LP87561 start-up capture: configure the regulator,
// arm the scope, pulse EN1 and read the waveforms back.
package bench

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/buckbench/pkg/config"
	"github.com/itohio/buckbench/pkg/instrument"
	"github.com/itohio/buckbench/pkg/regulator"
	"github.com/itohio/buckbench/pkg/rigol"
	"github.com/itohio/buckbench/pkg/trigger"
	"github.com/itohio/buckbench/pkg/waveform"
)

// Devices are the hardware handles a bench run owns.
type Devices struct {
	Bus        regulator.Bus
	Instrument instrument.Instrument
	Pin        trigger.Pin
}

// Bench sequences the stages of a run over its devices.
type Bench struct {
	cfg *config.Config
	log *logrus.Logger

	regulator *regulator.Configurator
	scope     *rigol.Scope
	pulser    *trigger.Pulser

	closers []namedCloser
	closed  bool
}

type namedCloser struct {
	name string
	io.Closer
}

// New creates a bench over already opened devices. The bench takes
// ownership and releases them in Close.
func New(cfg *config.Config, devices Devices, log *logrus.Logger) *Bench {
	return &Bench{
		cfg:       cfg,
		log:       log,
		regulator: regulator.New(devices.Bus, cfg.Regulator, log),
		scope:     rigol.New(devices.Instrument, cfg.Scope.HeaderSize, log),
		pulser:    trigger.NewPulser(devices.Pin, log),
		closers: []namedCloser{
			{name: "i2c bus", Closer: devices.Bus},
			{name: "scope", Closer: devices.Instrument},
			{name: "trigger pin", Closer: devices.Pin},
		},
	}
}

// Open opens the I2C bus, the scope and the trigger pin described by cfg.
// With mock set every device is simulated. Devices opened before a failure
// are closed again.
func Open(cfg *config.Config, mock bool, log *logrus.Logger) (*Bench, error) {
	if mock {
		log.Info("using simulated devices")
		return New(cfg, Devices{
			Bus:        regulator.NewMockBus(),
			Instrument: instrument.NewMock(&cfg.Mock),
			Pin:        trigger.NewMockPin(),
		}, log), nil
	}

	var opened []io.Closer
	release := func() {
		for i := len(opened) - 1; i >= 0; i-- {
			if err := opened[i].Close(); err != nil {
				log.WithError(err).Warn("failed to release device")
			}
		}
	}

	bus, err := regulator.OpenI2C(cfg.Regulator.Bus)
	if err != nil {
		return nil, err
	}
	opened = append(opened, bus)

	inst, err := instrument.Open(cfg, log)
	if err != nil {
		release()
		return nil, errors.Wrap(err, "failed to open scope")
	}
	opened = append(opened, inst)

	pin, err := trigger.OpenRPIO(cfg.Trigger.Pin)
	if err != nil {
		release()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"i2c":       bus.String(),
		"transport": cfg.Scope.Transport,
		"pin":       cfg.Trigger.Pin,
	}).Info("devices opened")

	return New(cfg, Devices{Bus: bus, Instrument: inst, Pin: pin}, log), nil
}

// Run executes every stage in order and returns the figure to plot.
// Only a failed scope pre-arm is tolerated.
func (b *Bench) Run(ctx context.Context) (*waveform.Figure, error) {
	if b.closed {
		return nil, errors.New("bench is closed")
	}

	b.stage("regulator").Info("configuring regulator")
	if err := b.regulator.Configure(ctx); err != nil {
		return nil, err
	}

	b.stage("pre-arm").WithField("timebase", b.cfg.Scope.Timebase).Info("setting scope timebase")
	if err := b.scope.SetTimebase(ctx, b.cfg.Scope.Timebase); err != nil {
		b.stage("pre-arm").WithError(err).Warn("scope pre-arm failed, continuing")
	}

	b.stage("trigger").WithField("duration", b.cfg.Trigger.Duration).Info("pulsing EN1")
	if err := b.pulser.Pulse(b.cfg.Trigger.Duration); err != nil {
		return nil, err
	}

	b.stage("acquire").Info("reading waveforms")
	wf := b.cfg.Waveform
	acq, err := b.scope.Acquire(ctx, waveform.Numbers(wf.Channels), wf.PerChannelCalibration)
	if err != nil {
		return nil, err
	}

	fig, err := waveform.Build(acq, waveform.Labels(wf.Channels), waveform.ConstantsFrom(wf))
	if err != nil {
		return nil, err
	}
	b.stage("acquire").WithFields(logrus.Fields{
		"points": len(fig.Time),
		"unit":   fig.Unit,
	}).Info("waveforms ready")

	return fig, nil
}

// Close releases the devices in reverse order of acquisition. It is safe to
// call more than once; the first error is returned after every device was tried.
func (b *Bench) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		c := b.closers[i]
		if err := c.Close(); err != nil {
			b.log.WithError(err).WithField("device", c.name).Warn("failed to close device")
			if first == nil {
				first = errors.Wrapf(err, "failed to close %s", c.name)
			}
		}
	}
	return first
}

func (b *Bench) stage(name string) *logrus.Entry {
	return b.log.WithField("stage", name)
}
