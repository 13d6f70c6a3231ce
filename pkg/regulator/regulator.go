// Package regulator configures the LP87561 buck regulator over I2C.
package regulator

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/buckbench/pkg/config"
)

// Register is an LP87561 register address.
type Register byte

const (
	RegEnable   Register = 0x02 // BUCK0_CTRL_1
	RegSlewRate Register = 0x03 // BUCK0_CTRL_2
	RegVout     Register = 0x0A // BUCK0_VOUT
	RegDelay    Register = 0x12 // BUCK0_DELAY
)

var registerNames = map[Register]string{
	RegEnable:   "enable",
	RegSlewRate: "slew rate",
	RegVout:     "Vout",
	RegDelay:    "delay",
}

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return "unknown"
}

// Step is one register write of the configuration plan.
type Step struct {
	Register Register
	Payload  byte
}

// Configurator writes the start-up configuration to the regulator.
type Configurator struct {
	bus  Bus
	addr byte
	plan []Step
	log  *logrus.Logger
}

// New creates a Configurator for the regulator described by cfg.
func New(bus Bus, cfg config.RegulatorConfig, log *logrus.Logger) *Configurator {
	return &Configurator{
		bus:  bus,
		addr: cfg.Address,
		plan: Plan(cfg),
		log:  log,
	}
}

// Plan returns the register writes in the order they must be issued:
// enable, slew rate, delay, Vout. Vout goes last so the output ramps with
// the slew rate and delay already in place.
func Plan(cfg config.RegulatorConfig) []Step {
	return []Step{
		{Register: RegEnable, Payload: cfg.Enable},
		{Register: RegSlewRate, Payload: cfg.SlewRate},
		{Register: RegDelay, Payload: cfg.Delay},
		{Register: RegVout, Payload: cfg.Vout},
	}
}

// Configure issues every write of the plan. The first failing write aborts.
func (c *Configurator) Configure(ctx context.Context) error {
	for _, step := range c.plan {
		entry := c.log.WithFields(logrus.Fields{
			"device":   fmt.Sprintf("0x%02x", c.addr),
			"register": step.Register.String(),
			"reg":      fmt.Sprintf("0x%02x", byte(step.Register)),
			"payload":  fmt.Sprintf("0x%02x", step.Payload),
		})
		if step.Register == RegVout {
			entry = entry.WithField("volts", VoutVolts(step.Payload))
		}

		if err := c.bus.WriteBlock(ctx, c.addr, byte(step.Register), []byte{step.Payload}); err != nil {
			return errors.Wrapf(err, "failed to write %s register", step.Register)
		}
		entry.Debug("register written")
	}
	return nil
}

// VoutVolts decodes a BUCKx_VOUT code to volts. Codes below 0x0A are reserved
// and decode to 0.
func VoutVolts(code byte) float64 {
	switch {
	case code < 0x0A:
		return 0
	case code <= 0x17:
		return 0.6 + float64(code-0x0A)*0.01
	case code <= 0x9D:
		return 0.73 + float64(code-0x17)*0.005
	default:
		return 1.42 + float64(code-0x9E)*0.02
	}
}
