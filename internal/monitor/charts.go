package monitor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/selene-data/illumination.report/internal/slicestore"
	"github.com/selene-data/illumination.report/internal/temporal"
)

// fractionFromStore computes the per-pixel daylight percentage over
// [start, end) by streaming slices one at a time, so the whole volume is
// never resident at once. Bounds are clamped to the dataset range.
func fractionFromStore(ctx context.Context, store *slicestore.Store, start, end int) (*temporal.FractionGrid, error) {
	dims := store.Dims()
	if start < 0 {
		start = 0
	}
	if end > dims.TimeSteps {
		end = dims.TimeSteps
	}
	grid := &temporal.FractionGrid{
		Height: dims.Height,
		Width:  dims.Width,
		Data:   make([]float64, dims.Height*dims.Width),
	}
	rangeLen := end - start
	if rangeLen <= 0 {
		return grid, nil
	}
	for t := start; t < end; t++ {
		slice, err := store.GetSlice(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("reading slice %d: %w", t, err)
		}
		for i, v := range slice {
			if v != 0 {
				grid.Data[i]++
			}
		}
	}
	scale := 100.0 / float64(rangeLen)
	for i := range grid.Data {
		grid.Data[i] *= scale
	}
	return grid, nil
}

// handleDaylightChart renders an interactive heatmap of the daylight
// percentage per pixel for a registered dataset.
func (ws *WebServer) handleDaylightChart(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("store")
	store, ok := ws.store(name)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown store %q", name))
		return
	}
	dims := store.Dims()
	start := queryInt(r, "start", 0)
	end := queryInt(r, "end", dims.TimeSteps)

	grid, err := fractionFromStore(r.Context(), store, start, end)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data := make([]opts.ScatterData, 0, grid.Height*grid.Width)
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			data = append(data, opts.ScatterData{Value: []interface{}{x, y, grid.At(y, x)}})
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Daylight Fraction", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Daylight Fraction Grid", Subtitle: fmt.Sprintf("dataset=%s steps=%d..%d percent illuminated", name, start, end)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: grid.Width, Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: grid.Height, Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        100,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("daylight %", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
