package plot

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	"github.com/itohio/buckbench/pkg/config"
	"github.com/itohio/buckbench/pkg/waveform"
)

// AppID identifies the application to fyne preferences storage.
const AppID = "com.itohio.buckbench"

// NewWindow creates a window on a showing fig.
func NewWindow(a fyne.App, cfg config.PlotConfig, fig *waveform.Figure) (fyne.Window, *Widget) {
	window := a.NewWindow(cfg.Title)
	window.Resize(fyne.NewSize(cfg.Width, cfg.Height))
	window.CenterOnScreen()

	w := New(cfg)
	w.SetFigure(fig)
	window.SetContent(w)
	return window, w
}

// Show opens the plot window and blocks until it is closed.
func Show(cfg config.PlotConfig, fig *waveform.Figure) {
	application := app.NewWithID(AppID)
	window, _ := NewWindow(application, cfg, fig)
	window.ShowAndRun()
}
