package instrument

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/buckbench/pkg/config"
)

func askFloat(t *testing.T, m *Mock, cmd string) float64 {
	t.Helper()
	resp, err := m.Ask(context.Background(), cmd)
	require.NoError(t, err)
	v, err := strconv.ParseFloat(strings.TrimSpace(string(resp)), 64)
	require.NoError(t, err)
	return v
}

func TestMock_TimebaseSetAndQuery(t *testing.T) {
	m := NewMock(nil)
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, ":TIM:SCAL 0.5"))
	assert.Equal(t, 0.5, m.Timebase())
	assert.Equal(t, 0.5, askFloat(t, m, ":TIM:SCAL?"))
	assert.Equal(t, 0.0, askFloat(t, m, ":TIM:OFFS?"))
}

func TestMock_AskOnSetCommandTimesOut(t *testing.T) {
	m := NewMock(nil)

	_, err := m.Ask(context.Background(), ":TIM:SCAL 0.5")
	assert.ErrorIs(t, err, ErrTimeout)
	// the setting still took effect
	assert.Equal(t, 0.5, m.Timebase())
}

func TestMock_ChannelQueries(t *testing.T) {
	m := NewMock(nil)
	m.SetChannel(2, 0.2, -0.4)

	assert.Equal(t, 1.0, askFloat(t, m, ":CHAN1:SCAL?"))
	assert.Equal(t, 0.0, askFloat(t, m, ":CHAN1:OFFS?"))
	assert.Equal(t, 0.2, askFloat(t, m, ":CHAN2:SCAL?"))
	assert.Equal(t, -0.4, askFloat(t, m, ":CHAN2:OFFS?"))

	require.NoError(t, m.Write(context.Background(), ":CHAN3:SCAL 5"))
	assert.Equal(t, 5.0, askFloat(t, m, ":CHAN3:SCAL?"))
}

func TestMock_WaveformPointsFollowMode(t *testing.T) {
	cfg := config.Default().Mock
	cfg.Points = 2048
	m := NewMock(&cfg)
	ctx := context.Background()

	resp, err := m.Ask(ctx, ":WAV:DATA? CHAN1")
	require.NoError(t, err)
	h, ok := ParseBlockHeader(resp)
	require.True(t, ok)
	assert.Equal(t, 10, h.Size)
	assert.Equal(t, mockNormalPoints, h.Length)

	require.NoError(t, m.Write(ctx, ":WAV:POIN:MODE RAW"))
	resp, err = m.Ask(ctx, ":WAV:DATA? CHAN2")
	require.NoError(t, err)
	h, ok = ParseBlockHeader(resp)
	require.True(t, ok)
	assert.Equal(t, 2048, h.Length)
	assert.Len(t, resp, 10+2048)
}

func TestMock_WaveformEncoding(t *testing.T) {
	cfg := config.Default().Mock
	cfg.NoiseLevel = 0
	cfg.EnableVolts = 3.0
	m := NewMock(&cfg)
	ctx := context.Background()
	require.NoError(t, m.Write(ctx, ":TIM:SCAL 0.5"))

	resp, err := m.Ask(ctx, ":WAV:DATA? CHAN2")
	require.NoError(t, err)
	data := resp[10:]

	// first sample is before the EN1 rise: 0 V sits at the screen center
	assert.Equal(t, byte(255-130), data[0])
	// just after t=0 EN1 is high: 3 V at 1 V/div is 75 counts above center
	center := data[len(data)/2+1]
	assert.Equal(t, byte(255-205), center)
}

func TestMock_SampleRate(t *testing.T) {
	m := NewMock(nil)
	require.NoError(t, m.Write(context.Background(), ":TIM:SCAL 0.5"))
	assert.InDelta(t, 600.0/6.0, askFloat(t, m, ":ACQ:SAMP?"), 0.1)
}

func TestMock_FailOn(t *testing.T) {
	m := NewMock(nil)
	boom := errors.New("boom")
	m.FailOn(":tim:scal", boom)

	assert.ErrorIs(t, m.Write(context.Background(), ":TIM:SCAL 0.5"), boom)
	_, err := m.Ask(context.Background(), ":TIM:SCAL?")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{":TIM:SCAL 0.5", ":TIM:SCAL?"}, m.Commands())
}

func TestMock_UnsupportedQuery(t *testing.T) {
	m := NewMock(nil)
	_, err := m.Ask(context.Background(), "*IDN?")
	assert.ErrorIs(t, err, ErrTimeout)

	_, err = m.Ask(context.Background(), ":WAV:DATA? MATH")
	assert.Error(t, err)
}

func TestMock_Closed(t *testing.T) {
	m := NewMock(nil)
	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
	assert.Error(t, m.Write(context.Background(), ":TIM:SCAL 1"))
}

func TestOpen_Mock(t *testing.T) {
	cfg := config.Default()
	cfg.Scope.Transport = config.TransportMock

	inst, err := Open(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, inst)
}

func TestOpen_UnknownTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Scope.Transport = "gpib"

	_, err := Open(cfg, nil)
	assert.Error(t, err)
}
