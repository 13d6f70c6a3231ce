package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Scope transports.
const (
	TransportUSBTMC = "usbtmc"
	TransportSerial = "serial"
	TransportMock   = "mock"
)

// Config represents the bench configuration.
type Config struct {
	Regulator RegulatorConfig `yaml:"regulator"`
	Scope     ScopeConfig     `yaml:"scope"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Waveform  WaveformConfig  `yaml:"waveform"`
	Plot      PlotConfig      `yaml:"plot"`
	Log       LogConfig       `yaml:"log"`
	Mock      MockConfig      `yaml:"mock"`
}

// RegulatorConfig contains the I2C bus and the register payloads written to the buck regulator.
type RegulatorConfig struct {
	Bus      string `yaml:"bus"`
	Address  uint8  `yaml:"address"`
	Enable   uint8  `yaml:"enable"`    // BUCK0 enabled by EN1, discharge resistor on
	SlewRate uint8  `yaml:"slew_rate"` // 0.47 mV/us
	Delay    uint8  `yaml:"delay"`     // 15 ms
	Vout     uint8  `yaml:"vout"`      // 0.73 V
}

// ScopeConfig contains the oscilloscope connection parameters.
type ScopeConfig struct {
	Transport  string        `yaml:"transport"`
	VendorID   uint16        `yaml:"vendor_id"`
	ProductID  uint16        `yaml:"product_id"`
	SerialPort string        `yaml:"serial_port"`
	BaudRate   int           `yaml:"baud_rate"`
	Timeout    time.Duration `yaml:"timeout"`
	Timebase   float64       `yaml:"timebase"`    // seconds per division set before the pulse
	HeaderSize int           `yaml:"header_size"` // bytes stripped from every waveform response
}

// TriggerConfig contains the GPIO trigger pulse parameters.
type TriggerConfig struct {
	Pin      int           `yaml:"pin"` // physical (board) pin number
	Duration time.Duration `yaml:"duration"`
}

// WaveformConfig contains the raw-sample rescale parameters.
type WaveformConfig struct {
	Channels              []ChannelConfig `yaml:"channels"`
	VerticalCenter        float64         `yaml:"vertical_center"` // raw count of the screen center
	CountsPerDivision     float64         `yaml:"counts_per_division"`
	HorizontalDivisions   int             `yaml:"horizontal_divisions"`
	PerChannelCalibration bool            `yaml:"per_channel_calibration"` // false reuses channel 1 scale/offset for every channel
}

// ChannelConfig names one acquired scope channel.
type ChannelConfig struct {
	Number int    `yaml:"number"`
	Label  string `yaml:"label"`
}

// PlotConfig contains plot window settings.
type PlotConfig struct {
	Title     string  `yaml:"title"`
	YLabel    string  `yaml:"y_label"`
	Width     float32 `yaml:"width"`
	Height    float32 `yaml:"height"`
	MaxPoints int     `yaml:"max_points"` // points per trace on screen, as min/max pairs per bucket
}

// MockConfig contains the simulated scope parameters used by -mock runs.
type MockConfig struct {
	Points      int           `yaml:"points"`        // samples per channel in RAW mode
	VoltsPerDiv float64       `yaml:"volts_per_div"` // vertical scale reported for every channel
	Vout        float64       `yaml:"vout"`          // simulated buck output (V)
	EnableVolts float64       `yaml:"enable_volts"`  // simulated EN1 high level (V)
	SlewRate    float64       `yaml:"slew_rate"`     // V/s
	Delay       time.Duration `yaml:"delay"`         // EN1 rise to output ramp start
	PulseWidth  time.Duration `yaml:"pulse_width"`   // EN1 high time
	NoiseLevel  float64       `yaml:"noise_level"`   // V
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration of the LP87561 start-up bench.
func Default() *Config {
	return &Config{
		Regulator: RegulatorConfig{
			Bus:      "1",
			Address:  0x62,
			Enable:   0xC4,
			SlewRate: 0x07,
			Delay:    0x0F,
			Vout:     0x17,
		},
		Scope: ScopeConfig{
			Transport:  TransportUSBTMC,
			VendorID:   0x1ab1,
			ProductID:  0x0588,
			SerialPort: "/dev/ttyUSB0",
			BaudRate:   38400,
			Timeout:    2 * time.Second,
			Timebase:   0.5,
			HeaderSize: 10,
		},
		Trigger: TriggerConfig{
			Pin:      11,
			Duration: 750 * time.Millisecond,
		},
		Waveform: WaveformConfig{
			Channels: []ChannelConfig{
				{Number: 1, Label: "CHAN1-BUCK0"},
				{Number: 2, Label: "CHAN2-EN1"},
			},
			VerticalCenter:      130,
			CountsPerDivision:   25,
			HorizontalDivisions: 12,
		},
		Plot: PlotConfig{
			Title:     "scope output",
			YLabel:    "V",
			Width:     1200,
			Height:    800,
			MaxPoints: 2000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Mock: MockConfig{
			Points:      8192,
			VoltsPerDiv: 1.0,
			Vout:        0.73,
			EnableVolts: 3.3,
			SlewRate:    470,
			Delay:       15 * time.Millisecond,
			PulseWidth:  750 * time.Millisecond,
			NoiseLevel:  0.01,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; fields missing from the file keep their default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// ApplyEnv overrides selected fields from the environment. When envFile is
// not empty it is loaded first with godotenv; variables already set in the
// process environment win over the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrapf(err, "failed to load env file %s", envFile)
		}
	}

	if val := os.Getenv("BUCKBENCH_I2C_BUS"); val != "" {
		c.Regulator.Bus = val
	}
	if val := os.Getenv("BUCKBENCH_SCOPE_TRANSPORT"); val != "" {
		c.Scope.Transport = strings.ToLower(val)
	}
	if val := os.Getenv("BUCKBENCH_SERIAL_PORT"); val != "" {
		c.Scope.SerialPort = val
	}
	if val := os.Getenv("BUCKBENCH_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}

	return c.Validate()
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Scope.Transport {
	case TransportUSBTMC, TransportSerial, TransportMock:
	default:
		return errors.Errorf("unknown scope transport %q", c.Scope.Transport)
	}
	if len(c.Waveform.Channels) == 0 {
		return errors.New("at least one waveform channel is required")
	}
	for _, ch := range c.Waveform.Channels {
		if ch.Number < 1 || ch.Number > 4 {
			return errors.Errorf("channel number %d out of range", ch.Number)
		}
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Regulator.Bus == "" {
		c.Regulator.Bus = def.Regulator.Bus
	}
	if c.Regulator.Address == 0 {
		c.Regulator.Address = def.Regulator.Address
	}

	if c.Scope.Transport == "" {
		c.Scope.Transport = def.Scope.Transport
	}
	if c.Scope.VendorID == 0 {
		c.Scope.VendorID = def.Scope.VendorID
	}
	if c.Scope.ProductID == 0 {
		c.Scope.ProductID = def.Scope.ProductID
	}
	if c.Scope.SerialPort == "" {
		c.Scope.SerialPort = def.Scope.SerialPort
	}
	if c.Scope.BaudRate == 0 {
		c.Scope.BaudRate = def.Scope.BaudRate
	}
	if c.Scope.Timeout == 0 {
		c.Scope.Timeout = def.Scope.Timeout
	}
	if c.Scope.Timebase == 0 {
		c.Scope.Timebase = def.Scope.Timebase
	}
	if c.Scope.HeaderSize == 0 {
		c.Scope.HeaderSize = def.Scope.HeaderSize
	}

	if c.Trigger.Pin == 0 {
		c.Trigger.Pin = def.Trigger.Pin
	}
	if c.Trigger.Duration == 0 {
		c.Trigger.Duration = def.Trigger.Duration
	}

	if len(c.Waveform.Channels) == 0 {
		c.Waveform.Channels = def.Waveform.Channels
	}
	if c.Waveform.VerticalCenter == 0 {
		c.Waveform.VerticalCenter = def.Waveform.VerticalCenter
	}
	if c.Waveform.CountsPerDivision == 0 {
		c.Waveform.CountsPerDivision = def.Waveform.CountsPerDivision
	}
	if c.Waveform.HorizontalDivisions == 0 {
		c.Waveform.HorizontalDivisions = def.Waveform.HorizontalDivisions
	}

	if c.Plot.Title == "" {
		c.Plot.Title = def.Plot.Title
	}
	if c.Plot.YLabel == "" {
		c.Plot.YLabel = def.Plot.YLabel
	}
	if c.Plot.Width == 0 {
		c.Plot.Width = def.Plot.Width
	}
	if c.Plot.Height == 0 {
		c.Plot.Height = def.Plot.Height
	}
	if c.Plot.MaxPoints == 0 {
		c.Plot.MaxPoints = def.Plot.MaxPoints
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	if c.Mock.Points == 0 {
		c.Mock.Points = def.Mock.Points
	}
	if c.Mock.VoltsPerDiv == 0 {
		c.Mock.VoltsPerDiv = def.Mock.VoltsPerDiv
	}
	if c.Mock.Vout == 0 {
		c.Mock.Vout = def.Mock.Vout
	}
	if c.Mock.EnableVolts == 0 {
		c.Mock.EnableVolts = def.Mock.EnableVolts
	}
	if c.Mock.SlewRate == 0 {
		c.Mock.SlewRate = def.Mock.SlewRate
	}
	if c.Mock.PulseWidth == 0 {
		c.Mock.PulseWidth = def.Mock.PulseWidth
	}
}
