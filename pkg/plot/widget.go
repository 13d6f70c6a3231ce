// Package plot shows a captured waveform figure in a fyne window.
package plot

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/buckbench/pkg/config"
	"github.com/itohio/buckbench/pkg/waveform"
)

// Grid divisions, same as the scope screen.
const (
	xDivisions = 12
	yDivisions = 8
)

// traceColors follow the DS1000E channel colors.
var traceColors = []color.RGBA{
	{R: 255, G: 220, B: 0, A: 255},   // CH1 yellow
	{R: 0, G: 220, B: 255, A: 255},   // CH2 cyan
	{R: 255, G: 80, B: 200, A: 255},  // CH3 magenta
	{R: 80, G: 120, B: 255, A: 255},  // CH4 blue
	{R: 255, G: 165, B: 0, A: 255},   // orange
	{R: 120, G: 255, B: 120, A: 255}, // green
}

func traceColor(i int) color.RGBA {
	return traceColors[i%len(traceColors)]
}

// Widget is a custom fyne widget drawing a waveform figure oscilloscope style.
type Widget struct {
	widget.BaseWidget

	cfg config.PlotConfig

	mu  sync.RWMutex
	fig *waveform.Figure // decimated for display

	// axis ranges
	xMin, xMax float64
	yMin, yMax float64
}

// New creates an empty plot widget.
func New(cfg config.PlotConfig) *Widget {
	w := &Widget{cfg: cfg}
	w.ExtendBaseWidget(w)
	w.updateRanges()
	return w
}

// SetFigure replaces the displayed figure.
func (w *Widget) SetFigure(fig *waveform.Figure) {
	w.mu.Lock()
	if fig != nil {
		fig = fig.Decimate(w.cfg.MaxPoints)
	}
	w.fig = fig
	w.updateRanges()
	w.mu.Unlock()

	w.Refresh()
}

// XRange returns the displayed time range in figure units.
func (w *Widget) XRange() (float64, float64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.xMin, w.xMax
}

// YRange returns the displayed voltage range including the margin.
func (w *Widget) YRange() (float64, float64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.yMin, w.yMax
}

// updateRanges clamps x to the figure time span and fits y with a 10% margin.
func (w *Widget) updateRanges() {
	w.xMin, w.xMax = 0, 1
	w.yMin, w.yMax = -1, 1
	if w.fig == nil {
		return
	}

	if w.fig.XMax > w.fig.XMin {
		w.xMin, w.xMax = w.fig.XMin, w.fig.XMax
	} else if len(w.fig.Time) > 0 {
		w.xMin, w.xMax = w.fig.XMin-0.5, w.fig.XMin+0.5
	}

	lo, hi, ok := w.fig.YRange()
	if !ok {
		return
	}
	span := hi - lo
	if span == 0 {
		span = 1.0
	}
	margin := span * 0.1
	w.yMin, w.yMax = lo-margin, hi+margin
}

// CreateRenderer creates the widget renderer.
func (w *Widget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &renderer{
		plot:    w,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
