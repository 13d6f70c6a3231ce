package plot

import (
	"math"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/buckbench/pkg/config"
	"github.com/itohio/buckbench/pkg/waveform"
)

func testFigure() *waveform.Figure {
	return &waveform.Figure{
		Time: []float64{-6, -2, 2, 6},
		Unit: waveform.Milliseconds,
		Traces: []waveform.Trace{
			{Label: "CHAN1-BUCK0", Volts: []float64{0, 0.2, 0.7, 0.73}},
			{Label: "CHAN2-EN1", Volts: []float64{0, 3.3, math.NaN(), 0}},
		},
		XMin: -6,
		XMax: 6,
	}
}

func TestWidget_Ranges(t *testing.T) {
	test.NewApp()
	w := New(config.Default().Plot)

	xMin, xMax := w.XRange()
	assert.Less(t, xMin, xMax)

	w.SetFigure(testFigure())
	xMin, xMax = w.XRange()
	assert.Equal(t, -6.0, xMin)
	assert.Equal(t, 6.0, xMax)

	yMin, yMax := w.YRange()
	assert.InDelta(t, -0.33, yMin, 1e-9)
	assert.InDelta(t, 3.63, yMax, 1e-9)
}

func TestWidget_FlatTrace(t *testing.T) {
	test.NewApp()
	w := New(config.Default().Plot)
	w.SetFigure(&waveform.Figure{
		Time:   []float64{0},
		Traces: []waveform.Trace{{Label: "a", Volts: []float64{1}}},
	})

	xMin, xMax := w.XRange()
	assert.Less(t, xMin, xMax)
	yMin, yMax := w.YRange()
	assert.InDelta(t, 0.9, yMin, 1e-9)
	assert.InDelta(t, 1.1, yMax, 1e-9)
}

func TestWidget_Decimates(t *testing.T) {
	test.NewApp()
	cfg := config.Default().Plot
	cfg.MaxPoints = 10

	n := 100
	fig := &waveform.Figure{Time: make([]float64, n), Traces: []waveform.Trace{{Volts: make([]float64, n)}}}
	for i := range n {
		fig.Time[i] = float64(i)
	}
	fig.XMax = float64(n - 1)

	w := New(cfg)
	w.SetFigure(fig)

	w.mu.RLock()
	defer w.mu.RUnlock()
	assert.Len(t, w.fig.Time, 10)
	assert.Len(t, w.fig.Traces[0].Volts, 10)
}

func TestRenderer_Draws(t *testing.T) {
	test.NewApp()
	w := New(config.Default().Plot)
	w.SetFigure(testFigure())
	w.Resize(fyne.NewSize(800, 600))

	r := test.WidgetRenderer(w)
	r.Refresh()

	var lines, texts int
	labels := map[string]bool{}
	for _, o := range r.Objects() {
		switch obj := o.(type) {
		case *canvas.Line:
			lines++
		case *canvas.Text:
			texts++
			labels[obj.Text] = true
		}
	}

	// 13 + 9 grid lines, 3 + 1 trace segments (NaN breaks CHAN2), 2 legend swatches
	assert.Equal(t, 13+9+4+2, lines)
	assert.Greater(t, texts, 0)
	assert.True(t, labels["CHAN1-BUCK0"])
	assert.True(t, labels["CHAN2-EN1"])
	assert.True(t, labels["scope output"])
	assert.True(t, labels["mS"])
	assert.True(t, labels["V"])
}

func TestScale(t *testing.T) {
	sc := scale{
		area: area{x: 10, y: 20, w: 100, h: 50},
		xMin: -1, xMax: 1,
		yMin: 0, yMax: 5,
	}

	assert.Equal(t, float32(10), sc.X(-1))
	assert.Equal(t, float32(110), sc.X(1))
	assert.Equal(t, float32(70), sc.Y(0))
	assert.Equal(t, float32(20), sc.Y(5))

	p := sc.clip(fyne.NewPos(0, 100))
	assert.Equal(t, fyne.NewPos(10, 70), p)
}

func TestFormatTick(t *testing.T) {
	assert.Equal(t, "0", formatTick(1e-12))
	assert.Equal(t, "0.5", formatTick(0.5))
	assert.Equal(t, "-6", formatTick(-6))
	assert.Equal(t, "1235", formatTick(1234.6))
}

func TestNewWindow(t *testing.T) {
	a := test.NewApp()
	cfg := config.Default().Plot

	window, w := NewWindow(a, cfg, testFigure())
	defer window.Close()

	assert.Equal(t, "scope output", window.Title())
	require.NotNil(t, w)
	assert.Equal(t, w, window.Content())
}
