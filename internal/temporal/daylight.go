package temporal

import (
	"fmt"

	"github.com/selene-data/illumination.report/internal/raster"
)

// FractionGrid is a single 2D grid of per-pixel daylight percentages in
// [0, 100], row-major.
type FractionGrid struct {
	Height int
	Width  int
	Data   []float64
}

// At returns the fraction for pixel (y, x).
func (g *FractionGrid) At(y, x int) float64 { return g.Data[y*g.Width+x] }

// DaylightFraction computes, per pixel, the percentage of day-classified
// samples over the inclusive time range [start, end]. A degenerate range
// (length <= 0, including ranges clipped away entirely) yields an all-zero
// grid rather than dividing by zero. Range bounds are clamped to the
// volume's time axis.
func DaylightFraction(vol *raster.Volume, start, end int) *FractionGrid {
	dims := vol.Dims
	grid := &FractionGrid{
		Height: dims.Height,
		Width:  dims.Width,
		Data:   make([]float64, dims.Height*dims.Width),
	}

	if start < 0 {
		start = 0
	}
	if end > dims.TimeSteps-1 {
		end = dims.TimeSteps - 1
	}
	rangeLen := end - start + 1
	if rangeLen <= 0 {
		return grid
	}

	for t := start; t <= end; t++ {
		slice := vol.Slice(t)
		for i, v := range slice {
			if isDay(v) {
				grid.Data[i]++
			}
		}
	}
	scale := 100 / float64(rangeLen)
	for i := range grid.Data {
		grid.Data[i] *= scale
	}
	return grid
}

// RunStats aggregates the contiguous runs of one class (day or night)
// within a scanned range. Shortest is 0, not a sentinel, when no run of
// the class occurred.
type RunStats struct {
	Count    int `json:"count"`
	Longest  int `json:"longest"`
	Shortest int `json:"shortest"`
}

func (s *RunStats) record(length int) {
	s.Count++
	if length > s.Longest {
		s.Longest = length
	}
	if s.Shortest == 0 || length < s.Shortest {
		s.Shortest = length
	}
}

// PixelRunStats holds per-class run statistics for a single pixel. It is
// computed on demand: a grid-wide version would be too expensive to
// precompute.
type PixelRunStats struct {
	Day   RunStats `json:"day"`
	Night RunStats `json:"night"`
}

// PixelRuns scans one pixel's series over the inclusive range [start, end]
// and aggregates day/night run lengths. A completed run flushes into its
// class counters on every class change and once more at the range end.
func PixelRuns(vol *raster.Volume, y, x, start, end int) (PixelRunStats, error) {
	dims := vol.Dims
	if y < 0 || y >= dims.Height || x < 0 || x >= dims.Width {
		return PixelRunStats{}, fmt.Errorf("pixel (%d,%d) outside %dx%d grid", y, x, dims.Height, dims.Width)
	}

	var stats PixelRunStats
	if start < 0 {
		start = 0
	}
	if end > dims.TimeSteps-1 {
		end = dims.TimeSteps - 1
	}
	if end-start+1 <= 0 {
		return stats, nil
	}

	runDay := isDay(vol.At(start, y, x))
	runLen := 1
	for t := start + 1; t <= end; t++ {
		day := isDay(vol.At(t, y, x))
		if day == runDay {
			runLen++
			continue
		}
		stats.flush(runDay, runLen)
		runDay = day
		runLen = 1
	}
	stats.flush(runDay, runLen)
	return stats, nil
}

func (s *PixelRunStats) flush(day bool, length int) {
	if day {
		s.Day.record(length)
	} else {
		s.Night.record(length)
	}
}
