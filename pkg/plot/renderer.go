package plot

import (
	"image/color"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/chewxy/math32"

	"github.com/itohio/buckbench/pkg/waveform"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	axisColor  = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	titleColor = color.RGBA{R: 220, G: 220, B: 220, A: 255}
)

// Plot area margins in pixels.
const (
	marginLeft   = float32(70)
	marginRight  = float32(20)
	marginTop    = float32(36)
	marginBottom = float32(50)
)

type renderer struct {
	plot *Widget

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// area is the pixel rectangle the data is drawn into.
type area struct {
	x, y, w, h float32
}

// scale maps data coordinates onto an area.
type scale struct {
	area
	xMin, xMax float64
	yMin, yMax float64
}

// X maps a time value to a pixel column.
func (s scale) X(v float64) float32 {
	return s.x + float32((v-s.xMin)/(s.xMax-s.xMin))*s.w
}

// Y maps a voltage to a pixel row; larger voltages are higher up.
func (s scale) Y(v float64) float32 {
	return s.y + s.h - float32((v-s.yMin)/(s.yMax-s.yMin))*s.h
}

// clip keeps a pixel position inside the area.
func (s scale) clip(p fyne.Position) fyne.Position {
	p.X = math32.Min(math32.Max(p.X, s.x), s.x+s.w)
	p.Y = math32.Min(math32.Max(p.Y, s.y), s.y+s.h)
	return p
}

func (r *renderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

func (r *renderer) Layout(size fyne.Size) {
	r.bg.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.plot.BaseWidget.Refresh()
	}
}

func (r *renderer) Refresh() {
	r.plot.mu.RLock()
	fig := r.plot.fig
	sc := scale{
		xMin: r.plot.xMin, xMax: r.plot.xMax,
		yMin: r.plot.yMin, yMax: r.plot.yMax,
	}
	cfg := r.plot.cfg
	r.plot.mu.RUnlock()

	size := r.plot.Size()
	r.objects = []fyne.CanvasObject{r.bg}
	if size.Width == 0 || size.Height == 0 {
		return
	}

	sc.area = area{
		x: marginLeft,
		y: marginTop,
		w: math32.Max(size.Width-marginLeft-marginRight, 1),
		h: math32.Max(size.Height-marginTop-marginBottom, 1),
	}

	r.drawGrid(sc)
	r.drawTitle(cfg.Title, size)

	unit := ""
	if fig != nil {
		unit = string(fig.Unit)
		for i, tr := range fig.Traces {
			r.drawTrace(sc, fig.Time, tr, traceColor(i))
		}
		r.drawLegend(sc, fig.Traces)
	}
	r.drawAxisLabels(sc, unit, cfg.YLabel)
}

func (r *renderer) drawGrid(sc scale) {
	for i := range yDivisions + 1 {
		y := sc.y + float32(i)*sc.h/yDivisions
		r.line(fyne.NewPos(sc.x, y), fyne.NewPos(sc.x+sc.w, y), gridColorAt(i, yDivisions), 1)

		value := sc.yMax - float64(i)*(sc.yMax-sc.yMin)/yDivisions
		r.text(formatTick(value), fyne.NewPos(sc.x-5, y-6), labelColor, 10, fyne.TextAlignTrailing)
	}

	for i := range xDivisions + 1 {
		x := sc.x + float32(i)*sc.w/xDivisions
		r.line(fyne.NewPos(x, sc.y), fyne.NewPos(x, sc.y+sc.h), gridColorAt(i, xDivisions), 1)

		value := sc.xMin + float64(i)*(sc.xMax-sc.xMin)/xDivisions
		r.text(formatTick(value), fyne.NewPos(x-20, sc.y+sc.h+5), labelColor, 10, fyne.TextAlignCenter)
	}
}

// gridColorAt highlights the center and border lines.
func gridColorAt(i, n int) color.RGBA {
	if i == 0 || i == n || 2*i == n {
		return axisColor
	}
	return gridColor
}

// drawTrace connects consecutive samples. Segments touching a NaN are skipped.
func (r *renderer) drawTrace(sc scale, t []float64, tr waveform.Trace, c color.RGBA) {
	n := min(len(t), len(tr.Volts))
	var prev fyne.Position
	havePrev := false

	for i := range n {
		x, y := sc.X(t[i]), sc.Y(tr.Volts[i])
		if math32.IsNaN(x) || math32.IsNaN(y) || math32.IsInf(y, 0) {
			havePrev = false
			continue
		}
		p := sc.clip(fyne.NewPos(x, y))
		if havePrev {
			r.line(prev, p, c, 1.5)
		}
		prev, havePrev = p, true
	}
}

func (r *renderer) drawLegend(sc scale, traces []waveform.Trace) {
	const rowHeight = float32(16)
	x := sc.x + sc.w - 130
	y := sc.y + 8

	for i, tr := range traces {
		c := traceColor(i)
		rowY := y + float32(i)*rowHeight
		r.line(fyne.NewPos(x, rowY+7), fyne.NewPos(x+20, rowY+7), c, 2)
		r.text(tr.Label, fyne.NewPos(x+26, rowY), c, 11, fyne.TextAlignLeading)
	}
}

func (r *renderer) drawTitle(title string, size fyne.Size) {
	if title == "" {
		return
	}
	t := r.text(title, fyne.NewPos(0, 8), titleColor, 14, fyne.TextAlignCenter)
	t.TextStyle = fyne.TextStyle{Bold: true}
	t.Resize(fyne.NewSize(size.Width, 18))
}

func (r *renderer) drawAxisLabels(sc scale, xLabel, yLabel string) {
	if xLabel != "" {
		t := r.text(xLabel, fyne.NewPos(sc.x, sc.y+sc.h+24), titleColor, 12, fyne.TextAlignCenter)
		t.Resize(fyne.NewSize(sc.w, 16))
	}
	if yLabel != "" {
		r.text(yLabel, fyne.NewPos(8, sc.y+sc.h/2-8), titleColor, 12, fyne.TextAlignLeading)
	}
}

func (r *renderer) line(p1, p2 fyne.Position, c color.Color, width float32) *canvas.Line {
	l := canvas.NewLine(c)
	l.Position1 = p1
	l.Position2 = p2
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
	return l
}

func (r *renderer) text(s string, pos fyne.Position, c color.Color, size float32, align fyne.TextAlign) *canvas.Text {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(pos)
	r.objects = append(r.objects, t)
	return t
}

func (r *renderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *renderer) Destroy() {}

func formatTick(v float64) string {
	if v > -1e-9 && v < 1e-9 {
		return "0"
	}
	return strconv.FormatFloat(v, 'g', 4, 64)
}
