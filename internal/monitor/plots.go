package monitor

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/selene-data/illumination.report/internal/temporal"
)

// handlePixelSeriesPlot renders one pixel's illumination series as a PNG,
// with the detected night periods overlaid as a step line.
func (ws *WebServer) handlePixelSeriesPlot(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("store")
	store, ok := ws.store(name)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown store %q", name))
		return
	}
	dims := store.Dims()
	y := queryInt(r, "y", 0)
	x := queryInt(r, "x", 0)
	if y < 0 || y >= dims.Height || x < 0 || x >= dims.Width {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("pixel (%d,%d) outside %s", y, x, dims.String()))
		return
	}

	series, err := store.GetPixelSeries(r.Context(), y, x)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	nights := temporal.NightPeriods(series)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Pixel (%d,%d) illumination: %s", y, x, name)
	p.X.Label.Text = "Time step"
	p.Y.Label.Text = "Illumination"

	pts := make(plotter.XYs, len(series))
	for t, v := range series {
		pts[t] = plotter.XY{X: float64(t), Y: float64(v)}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("illumination", line)

	// Mark night spans as a flat line just below zero.
	nightPts := make(plotter.XYs, 0, len(nights)*2)
	for _, np := range nights {
		nightPts = append(nightPts,
			plotter.XY{X: float64(np.Start), Y: -0.05},
			plotter.XY{X: float64(np.End - 1), Y: -0.05},
		)
	}
	if len(nightPts) > 0 {
		scatter, err := plotter.NewScatter(nightPts)
		if err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		scatter.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("night bounds (%d periods)", len(nights)), scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	ws.writePNG(w, p)
}

// handleNightfallHistogram renders the duration distribution of completed
// night periods across the whole grid. Durations are gathered by streaming
// slices once and tracking the current dark-run length per pixel, so memory
// stays bounded by one slice plus one counter per pixel.
func (ws *WebServer) handleNightfallHistogram(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("store")
	store, ok := ws.store(name)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown store %q", name))
		return
	}
	dims := store.Dims()

	runLen := make([]int, dims.SliceLen())
	var durations plotter.Values
	for t := 0; t < dims.TimeSteps; t++ {
		slice, err := store.GetSlice(r.Context(), t)
		if err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("reading slice %d: %v", t, err))
			return
		}
		for i, v := range slice {
			if v == 0 {
				runLen[i]++
			} else if runLen[i] > 0 {
				durations = append(durations, float64(runLen[i]))
				runLen[i] = 0
			}
		}
	}
	// Runs still dark at the end of the dataset have no sunrise; they are
	// open-ended and excluded from the distribution.

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Night period durations: %s", name)
	p.X.Label.Text = "Duration (time steps)"
	p.Y.Label.Text = "Count"

	if len(durations) > 0 {
		hist, err := plotter.NewHist(durations, 16)
		if err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		hist.FillColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		p.Add(hist)
	}

	ws.writePNG(w, p)
}

func (ws *WebServer) writePNG(w http.ResponseWriter, p *plot.Plot) {
	writer, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("rendering plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := writer.WriteTo(w); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
