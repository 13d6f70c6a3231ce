// Package rigol drives a Rigol DS1000E oscilloscope through its SCPI
// command set.
//
// Refer to the DS1000E/D programming guide for the command reference.
package rigol

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/buckbench/pkg/instrument"
)

// DefaultHeaderSize is the length of the block header preceding waveform data.
const DefaultHeaderSize = 10

// Calibration holds the scalars needed to turn raw bytes of one channel
// into volts and seconds.
type Calibration struct {
	XScale     float64 // seconds per division
	YScale     float64 // volts per division
	XOffset    float64 // seconds
	YOffset    float64 // volts
	SampleRate float64 // samples per second
}

// ChannelData is the raw payload of one channel and the vertical calibration
// applied to it.
type ChannelData struct {
	Number  int
	Raw     []byte
	YScale  float64
	YOffset float64
}

// Acquisition is one captured set of channels sharing the horizontal calibration.
type Acquisition struct {
	Channels   []ChannelData
	XScale     float64
	XOffset    float64
	SampleRate float64
}

// Scope is a DS1000E oscilloscope.
type Scope struct {
	inst       instrument.Instrument
	headerSize int
	log        *logrus.Logger
}

// New wraps an open instrument. headerSize <= 0 uses DefaultHeaderSize.
func New(inst instrument.Instrument, headerSize int, log *logrus.Logger) *Scope {
	if headerSize <= 0 {
		headerSize = DefaultHeaderSize
	}
	return &Scope{inst: inst, headerSize: headerSize, log: log}
}

// SetTimebase sets the horizontal scale in seconds per division.
func (s *Scope) SetTimebase(ctx context.Context, scale float64) error {
	cmd := ":TIM:SCAL " + strconv.FormatFloat(scale, 'g', -1, 64)
	return errors.Wrap(s.inst.Write(ctx, cmd), "failed to set timebase")
}

// SetRawPointMode switches waveform reads to the raw memory points.
func (s *Scope) SetRawPointMode(ctx context.Context) error {
	return errors.Wrap(s.inst.Write(ctx, ":WAV:POIN:MODE RAW"), "failed to set raw point mode")
}

// WaveformData reads the waveform of channel ch and strips the block header.
// When the header declares a shorter payload than was received the payload
// is cut to the declared length.
func (s *Scope) WaveformData(ctx context.Context, ch int) ([]byte, error) {
	cmd := fmt.Sprintf(":WAV:DATA? CHAN%d", ch)
	resp, err := s.inst.Ask(ctx, cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read channel %d waveform", ch)
	}
	return StripHeader(resp, s.headerSize)
}

// StripHeader drops the first size bytes of a waveform response.
func StripHeader(resp []byte, size int) ([]byte, error) {
	if len(resp) < size {
		return nil, errors.Errorf("waveform response of %d bytes is shorter than its %d byte header", len(resp), size)
	}

	payload := resp[size:]
	if h, ok := instrument.ParseBlockHeader(resp); ok && h.Size == size && h.Length < len(payload) {
		payload = payload[:h.Length]
	}
	return payload, nil
}

// Calibration queries the horizontal scalars, the vertical scalars of
// channel ch and the sample rate.
func (s *Scope) Calibration(ctx context.Context, ch int) (Calibration, error) {
	var (
		cal Calibration
		err error
	)
	chanScale := fmt.Sprintf(":CHAN%d:SCAL?", ch)
	chanOffset := fmt.Sprintf(":CHAN%d:OFFS?", ch)

	if cal.XScale, err = s.AskFloat(ctx, ":TIM:SCAL?"); err != nil {
		return cal, err
	}
	if cal.YScale, err = s.AskFloat(ctx, chanScale); err != nil {
		return cal, err
	}
	if cal.XOffset, err = s.AskFloat(ctx, ":TIM:OFFS?"); err != nil {
		return cal, err
	}
	if cal.YOffset, err = s.AskFloat(ctx, chanOffset); err != nil {
		return cal, err
	}
	if cal.SampleRate, err = s.AskFloat(ctx, ":ACQ:SAMP?"); err != nil {
		return cal, err
	}
	return cal, nil
}

// AskFloat sends a query and parses the answer as a number.
func (s *Scope) AskFloat(ctx context.Context, cmd string) (float64, error) {
	resp, err := s.inst.Ask(ctx, cmd)
	if err != nil {
		return 0, errors.Wrapf(err, "query %s failed", cmd)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(resp)), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed answer to %s", cmd)
	}
	return v, nil
}

// Acquire switches to raw point mode and reads every listed channel, then
// the calibration. With perChannel false every channel is scaled with
// channel 1 calibration.
func (s *Scope) Acquire(ctx context.Context, channels []int, perChannel bool) (*Acquisition, error) {
	if err := s.SetRawPointMode(ctx); err != nil {
		return nil, err
	}

	acq := &Acquisition{Channels: make([]ChannelData, 0, len(channels))}
	for _, ch := range channels {
		raw, err := s.WaveformData(ctx, ch)
		if err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{"channel": ch, "points": len(raw)}).Debug("waveform read")
		acq.Channels = append(acq.Channels, ChannelData{Number: ch, Raw: raw})
	}

	base, err := s.Calibration(ctx, 1)
	if err != nil {
		return nil, err
	}
	acq.XScale = base.XScale
	acq.XOffset = base.XOffset
	acq.SampleRate = base.SampleRate

	for i := range acq.Channels {
		cd := &acq.Channels[i]
		cd.YScale, cd.YOffset = base.YScale, base.YOffset
		if !perChannel || cd.Number == 1 {
			continue
		}
		if cd.YScale, err = s.AskFloat(ctx, fmt.Sprintf(":CHAN%d:SCAL?", cd.Number)); err != nil {
			return nil, err
		}
		if cd.YOffset, err = s.AskFloat(ctx, fmt.Sprintf(":CHAN%d:OFFS?", cd.Number)); err != nil {
			return nil, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"x_scale":     acq.XScale,
		"x_offset":    acq.XOffset,
		"y_scale":     base.YScale,
		"y_offset":    base.YOffset,
		"sample_rate": acq.SampleRate,
	}).Info("scope calibration")

	return acq, nil
}
