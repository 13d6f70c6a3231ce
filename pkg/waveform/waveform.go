// Package waveform turns raw DS1000E screen bytes into volts on a time axis.
package waveform

import (
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/itohio/buckbench/pkg/config"
	"github.com/itohio/buckbench/pkg/rigol"
)

// Unit is the label of the time axis.
type Unit string

const (
	Microseconds Unit = "uS"
	Milliseconds Unit = "mS"
	Seconds      Unit = "S"
)

// Constants describe how raw bytes map onto the scope screen.
type Constants struct {
	Center       float64 // raw count of the screen center
	CountsPerDiv float64
	Divisions    int // horizontal divisions spanned by the capture
}

// DefaultConstants returns the DS1000E screen mapping.
func DefaultConstants() Constants {
	return Constants{Center: 130, CountsPerDiv: 25, Divisions: 12}
}

// ConstantsFrom reads the screen mapping from the waveform config.
func ConstantsFrom(cfg config.WaveformConfig) Constants {
	return Constants{
		Center:       cfg.VerticalCenter,
		CountsPerDiv: cfg.CountsPerDivision,
		Divisions:    cfg.HorizontalDivisions,
	}
}

// ChannelCalibration is the vertical scale (V/div) and offset (V) of a channel.
type ChannelCalibration struct {
	YScale  float64
	YOffset float64
}

// Trace is one labelled channel in volts.
type Trace struct {
	Label string
	Volts []float64
}

// Figure is a complete plot: a unit-scaled time axis and traces of equal length.
type Figure struct {
	Time   []float64
	Unit   Unit
	Traces []Trace
	XMin   float64
	XMax   float64
}

// Rescale converts raw bytes into volts.
//
// The scope stores the screen upside down: byte 255 is the bottom row.
func Rescale(raw []byte, cal ChannelCalibration, c Constants) []float64 {
	out := make([]float64, len(raw))
	shift := c.Center + cal.YOffset/cal.YScale*c.CountsPerDiv
	for i, b := range raw {
		out[i] = (float64(255-int(b)) - shift) / c.CountsPerDiv * cal.YScale
	}
	return out
}

// TimeAxis returns n points evenly spaced over divisions*xScale seconds
// centred on xOffset, both ends included.
func TimeAxis(xScale, xOffset float64, divisions, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	half := float64(divisions) / 2 * xScale
	start, stop := xOffset-half, xOffset+half

	axis := make([]float64, n)
	if n == 1 {
		axis[0] = start
		return axis
	}
	step := (stop - start) / float64(n-1)
	for i := range axis {
		axis[i] = start + float64(i)*step
	}
	axis[n-1] = stop
	return axis
}

// SelectUnit picks the display unit from the last value of a time axis and
// returns the factor that converts seconds into it.
func SelectUnit(axis []float64) (Unit, float64) {
	if len(axis) == 0 {
		return Seconds, 1
	}
	last := axis[len(axis)-1]
	switch {
	case last < 1e-3:
		return Microseconds, 1e6
	case last < 1:
		return Milliseconds, 1e3
	default:
		return Seconds, 1
	}
}

// Build rescales every acquired channel and puts them on a common time axis.
// Channels shorter than the longest one are padded with NaN.
// labels maps channel numbers to legend labels; missing labels fall back to CHANn.
func Build(acq *rigol.Acquisition, labels map[int]string, c Constants) (*Figure, error) {
	if acq == nil || len(acq.Channels) == 0 {
		return nil, errors.New("no channels acquired")
	}
	if c.CountsPerDiv == 0 {
		return nil, errors.New("counts per division must be non-zero")
	}

	n := 0
	for _, ch := range acq.Channels {
		if ch.YScale == 0 {
			return nil, errors.Errorf("channel %d has zero vertical scale", ch.Number)
		}
		n = max(n, len(ch.Raw))
	}

	fig := &Figure{Traces: make([]Trace, 0, len(acq.Channels))}
	for _, ch := range acq.Channels {
		volts := Rescale(ch.Raw, ChannelCalibration{YScale: ch.YScale, YOffset: ch.YOffset}, c)
		for len(volts) < n {
			volts = append(volts, math.NaN())
		}

		label, ok := labels[ch.Number]
		if !ok {
			label = channelName(ch.Number)
		}
		fig.Traces = append(fig.Traces, Trace{Label: label, Volts: volts})
	}

	axis := TimeAxis(acq.XScale, acq.XOffset, c.Divisions, n)
	unit, factor := SelectUnit(axis)
	for i := range axis {
		axis[i] *= factor
	}
	fig.Time = axis
	fig.Unit = unit
	if n > 0 {
		fig.XMin, fig.XMax = axis[0], axis[n-1]
	}
	return fig, nil
}

// Labels builds the channel label map from config.
func Labels(channels []config.ChannelConfig) map[int]string {
	labels := make(map[int]string, len(channels))
	for _, ch := range channels {
		labels[ch.Number] = ch.Label
	}
	return labels
}

// Numbers lists the configured channel numbers in order.
func Numbers(channels []config.ChannelConfig) []int {
	nums := make([]int, len(channels))
	for i, ch := range channels {
		nums[i] = ch.Number
	}
	return nums
}

// YRange returns the finite minimum and maximum over all traces.
// ok is false when no finite value exists.
func (f *Figure) YRange() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, tr := range f.Traces {
		for _, v := range tr.Volts {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi, lo <= hi
}

// Decimate returns a copy of the figure with at most maxPoints points per
// trace. Traces keep the minimum and maximum of every bucket so transients
// survive; the time axis keeps the bucket edges.
func (f *Figure) Decimate(maxPoints int) *Figure {
	if maxPoints <= 0 || len(f.Time) <= maxPoints {
		return f
	}
	out := &Figure{
		Unit:   f.Unit,
		Traces: make([]Trace, len(f.Traces)),
		XMin:   f.XMin,
		XMax:   f.XMax,
	}

	if maxPoints < 2 {
		out.Time = Downsample(nil, f.Time, maxPoints)
		for i, tr := range f.Traces {
			out.Traces[i] = Trace{Label: tr.Label, Volts: Downsample(nil, tr.Volts, maxPoints)}
		}
		return out
	}

	buckets := maxPoints / 2
	out.Time = Edges(nil, f.Time, buckets)
	for i, tr := range f.Traces {
		out.Traces[i] = Trace{Label: tr.Label, Volts: MinMax(nil, tr.Volts, buckets)}
	}
	return out
}

func channelName(n int) string {
	return "CHAN" + strconv.Itoa(n)
}
