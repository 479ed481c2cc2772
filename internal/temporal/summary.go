package temporal

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary is a compact statistical description of a derived grid or
// duration set, recorded alongside analysis runs and shown in reports.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes summary statistics over a value set. An empty input
// yields the zero Summary.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	// StdDev of a single sample is NaN, which JSON encoding rejects.
	sd := 0.0
	if len(sorted) > 1 {
		sd = stat.StdDev(sorted, nil)
	}

	return Summary{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		StdDev: sd,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

// SummarizeFractions summarizes a daylight-fraction grid.
func SummarizeFractions(grid *FractionGrid) Summary {
	return Summarize(grid.Data)
}
