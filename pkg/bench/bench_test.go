package bench

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/buckbench/pkg/config"
	"github.com/itohio/buckbench/pkg/instrument"
	"github.com/itohio/buckbench/pkg/regulator"
	"github.com/itohio/buckbench/pkg/trigger"
)

type fixture struct {
	cfg   *config.Config
	bus   *regulator.MockBus
	inst  *instrument.Mock
	pin   *trigger.MockPin
	hook  *test.Hook
	bench *Bench
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Trigger.Duration = time.Millisecond
	cfg.Mock.Points = 1024

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	f := &fixture{
		cfg:  cfg,
		bus:  regulator.NewMockBus(),
		inst: instrument.NewMock(&cfg.Mock),
		pin:  trigger.NewMockPin(),
		hook: hook,
	}
	f.bench = New(cfg, Devices{Bus: f.bus, Instrument: f.inst, Pin: f.pin}, log)
	return f
}

func TestRun(t *testing.T) {
	f := newFixture(t)

	fig, err := f.bench.Run(context.Background())
	require.NoError(t, err)

	regs := []byte{}
	for _, w := range f.bus.Writes() {
		assert.Equal(t, byte(0x62), w.Addr)
		regs = append(regs, w.Reg)
	}
	assert.Equal(t, []byte{0x02, 0x03, 0x12, 0x0A}, regs)

	cmds := f.inst.Commands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, ":TIM:SCAL 0.5", cmds[0])
	assert.Equal(t, 0.5, f.inst.Timebase())

	levels := f.pin.Levels()
	require.Len(t, levels, 2)
	assert.True(t, levels[0].High)
	assert.False(t, levels[1].High)

	require.Len(t, fig.Traces, 2)
	assert.Equal(t, "CHAN1-BUCK0", fig.Traces[0].Label)
	assert.Equal(t, "CHAN2-EN1", fig.Traces[1].Label)
	assert.Len(t, fig.Time, 1024)
	for _, tr := range fig.Traces {
		assert.Len(t, tr.Volts, len(fig.Time))
	}
	// 0.5 s/div over 12 divisions ends at +3 s
	assert.Equal(t, "S", string(fig.Unit))
	assert.InDelta(t, -3, fig.XMin, 1e-9)
	assert.InDelta(t, 3, fig.XMax, 1e-9)
}

func TestRun_PreArmFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.inst.FailOn(":TIM:SCAL 0", errors.New("usb stall"))

	fig, err := f.bench.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, fig)

	assert.Len(t, f.pin.Levels(), 2, "trigger must still fire")

	var warned bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["stage"] == "pre-arm" {
			warned = true
			assert.Contains(t, e.Data[logrus.ErrorKey].(error).Error(), "usb stall")
		}
	}
	assert.True(t, warned)
}

func TestRun_RegulatorFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.bus.FailOn(byte(regulator.RegSlewRate), errors.New("nack"))

	_, err := f.bench.Run(context.Background())
	assert.ErrorContains(t, err, "slew rate")
	assert.Empty(t, f.inst.Commands())
	assert.Empty(t, f.pin.Levels())
}

func TestRun_TriggerFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.pin.Fail(errors.New("gpio busy"))

	_, err := f.bench.Run(context.Background())
	assert.ErrorContains(t, err, "gpio busy")
	assert.NotContains(t, f.inst.Commands(), ":WAV:POIN:MODE RAW")
}

func TestRun_AcquireFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.inst.FailOn(":WAV:DATA?", instrument.ErrTimeout)

	_, err := f.bench.Run(context.Background())
	assert.ErrorIs(t, err, instrument.ErrTimeout)
}

func TestRun_AfterClose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bench.Close())

	_, err := f.bench.Run(context.Background())
	assert.Error(t, err)
}

// orderCloser records when Close is called.
type orderCloser struct {
	name  string
	order *[]string
	err   error
}

func (c orderCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

type recBus struct {
	*regulator.MockBus
	orderCloser
}

func (b recBus) Close() error { return b.orderCloser.Close() }

type recInstrument struct {
	*instrument.Mock
	orderCloser
}

func (i recInstrument) Close() error { return i.orderCloser.Close() }

type recPin struct {
	*trigger.MockPin
	orderCloser
}

func (p recPin) Close() error { return p.orderCloser.Close() }

func TestClose_ReverseOrder(t *testing.T) {
	cfg := config.Default()
	log, _ := test.NewNullLogger()
	var order []string

	b := New(cfg, Devices{
		Bus:        recBus{regulator.NewMockBus(), orderCloser{name: "bus", order: &order}},
		Instrument: recInstrument{instrument.NewMock(nil), orderCloser{name: "scope", order: &order, err: errors.New("busy")}},
		Pin:        recPin{trigger.NewMockPin(), orderCloser{name: "pin", order: &order}},
	}, log)

	err := b.Close()
	assert.ErrorContains(t, err, "failed to close scope")
	assert.Equal(t, []string{"pin", "scope", "bus"}, order)

	require.NoError(t, b.Close())
	assert.Len(t, order, 3, "second close is a no-op")
}

func TestOpen_Mock(t *testing.T) {
	cfg := config.Default()
	cfg.Trigger.Duration = time.Millisecond
	cfg.Mock.Points = 256
	log, _ := test.NewNullLogger()

	b, err := Open(cfg, true, log)
	require.NoError(t, err)
	defer b.Close()

	fig, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, fig.Time, 256)
}
