package instrument

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/itohio/buckbench/pkg/config"
)

// DS1000E screen mapping of raw waveform bytes.
const (
	mockScreenCenter    = 130.0
	mockCountsPerDiv    = 25.0
	mockDivisions       = 12.0
	mockNormalPoints    = 600
	mockDischargeTau    = 5e-3 // seconds
	mockDefaultTimebase = 1e-3
)

type mockChannel struct {
	scale  float64
	offset float64
}

// Mock simulates a Rigol DS1000E capturing an LP87561 start-up: channel 1
// shows the buck output, channel 2 the EN1 pulse that starts it.
type Mock struct {
	cfg *config.MockConfig

	mu         sync.Mutex
	closed     bool
	timebase   float64
	timeOffset float64
	rawMode    bool
	channels   [4]mockChannel
	commands   []string
	failOn     map[string]error
}

// NewMock creates a simulated scope. A nil cfg uses the default mock settings.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}

	m := &Mock{
		cfg:      cfg,
		timebase: mockDefaultTimebase,
		failOn:   make(map[string]error),
	}
	for i := range m.channels {
		m.channels[i] = mockChannel{scale: cfg.VoltsPerDiv}
	}
	return m
}

// SetChannel overrides the vertical scale and offset reported for channel ch (1-based).
func (m *Mock) SetChannel(ch int, scale, offset float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch-1] = mockChannel{scale: scale, offset: offset}
}

// FailOn makes every command starting with prefix fail with err.
func (m *Mock) FailOn(prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[strings.ToUpper(prefix)] = err
}

// Commands returns every command received, in order.
func (m *Mock) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Timebase returns the current horizontal scale in seconds per division.
func (m *Mock) Timebase() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timebase
}

func (m *Mock) Write(ctx context.Context, cmd string) error {
	_, err := m.exec(ctx, cmd)
	return err
}

func (m *Mock) Ask(ctx context.Context, cmd string) ([]byte, error) {
	resp, err := m.exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		// set commands produce no answer
		return nil, errors.Wrapf(ErrTimeout, "no response to %q", cmd)
	}
	return resp, nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) exec(ctx context.Context, cmd string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("mock instrument is closed")
	}
	m.commands = append(m.commands, cmd)

	norm := strings.ToUpper(strings.TrimSpace(cmd))
	for prefix, err := range m.failOn {
		if strings.HasPrefix(norm, prefix) {
			return nil, err
		}
	}

	header, arg, _ := strings.Cut(norm, " ")
	if strings.HasSuffix(header, "?") {
		return m.query(strings.TrimSuffix(header, "?"), arg)
	}
	return nil, m.set(header, arg)
}

func (m *Mock) set(header, arg string) error {
	if header == ":WAV:POIN:MODE" {
		m.rawMode = arg == "RAW"
		return nil
	}

	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		// unknown or non-numeric settings are ignored like on the real scope
		return nil
	}

	switch header {
	case ":TIM:SCAL":
		m.timebase = v
	case ":TIM:OFFS":
		m.timeOffset = v
	default:
		if ch, field, ok := parseChannelHeader(header); ok {
			switch field {
			case "SCAL":
				m.channels[ch-1].scale = v
			case "OFFS":
				m.channels[ch-1].offset = v
			}
		}
	}
	return nil
}

func (m *Mock) query(header, arg string) ([]byte, error) {
	switch header {
	case ":TIM:SCAL":
		return formatNumber(m.timebase), nil
	case ":TIM:OFFS":
		return formatNumber(m.timeOffset), nil
	case ":ACQ:SAMP":
		return formatNumber(float64(m.points()) / (mockDivisions * m.timebase)), nil
	case ":WAV:DATA":
		ch, _, ok := parseChannelHeader(":" + arg + ":DATA")
		if !ok {
			return nil, errors.Errorf("invalid waveform source %q", arg)
		}
		return FormatBlock(m.waveform(ch), 8), nil
	}

	if ch, field, ok := parseChannelHeader(header); ok {
		switch field {
		case "SCAL":
			return formatNumber(m.channels[ch-1].scale), nil
		case "OFFS":
			return formatNumber(m.channels[ch-1].offset), nil
		}
	}
	return nil, errors.Wrapf(ErrTimeout, "unsupported query %q", header+"?")
}

func (m *Mock) points() int {
	if m.rawMode {
		return m.cfg.Points
	}
	return mockNormalPoints
}

// waveform renders channel ch as raw screen bytes.
func (m *Mock) waveform(ch int) []byte {
	n := m.points()
	span := mockDivisions * m.timebase
	start := m.timeOffset - span/2
	c := m.channels[ch-1]

	data := make([]byte, n)
	for i := range n {
		t := start
		if n > 1 {
			t += span * float64(i) / float64(n-1)
		}

		var v float64
		switch ch {
		case 1:
			v = m.buckOutput(t)
		case 2:
			v = m.enable(t)
		}
		v += m.cfg.NoiseLevel * math.Sin(float64(i)*0.7) * math.Cos(float64(i)*1.3)

		counts := v/c.scale*mockCountsPerDiv + mockScreenCenter + c.offset/c.scale*mockCountsPerDiv
		data[i] = byte(255 - clamp(math.Round(counts), 0, 255))
	}
	return data
}

func (m *Mock) enable(t float64) float64 {
	if t >= 0 && t < m.cfg.PulseWidth.Seconds() {
		return m.cfg.EnableVolts
	}
	return 0
}

func (m *Mock) buckOutput(t float64) float64 {
	delay := m.cfg.Delay.Seconds()
	width := m.cfg.PulseWidth.Seconds()

	ramp := func(t float64) float64 {
		if t < delay {
			return 0
		}
		return math.Min(m.cfg.Vout, (t-delay)*m.cfg.SlewRate)
	}

	if t < width {
		return ramp(t)
	}
	return ramp(width) * math.Exp(-(t-width)/mockDischargeTau)
}

// parseChannelHeader splits ":CHANn:FIELD".
func parseChannelHeader(header string) (ch int, field string, ok bool) {
	rest, found := strings.CutPrefix(header, ":CHAN")
	if !found || len(rest) < 3 || rest[1] != ':' {
		return 0, "", false
	}
	ch = int(rest[0] - '0')
	if ch < 1 || ch > 4 {
		return 0, "", false
	}
	return ch, rest[2:], true
}

func formatNumber(v float64) []byte {
	return []byte(strconv.FormatFloat(v, 'e', 3, 64) + "\n")
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
