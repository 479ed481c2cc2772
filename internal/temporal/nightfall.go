// Package temporal implements the temporal pattern analyzers that derive
// new layers from binary day/night illumination volumes: the nightfall
// forecast and the daylight-fraction aggregation.
//
// Classification follows the expression engine's truthiness rule: a sample
// is "day" iff it is non-zero, "night" iff it is exactly zero. Every time
// step of a pixel's series falls into exactly one of the two classes.
package temporal

import "github.com/selene-data/illumination.report/internal/raster"

// NightPeriod is a maximal contiguous run of night-classified time steps
// for a single pixel, as the half-open interval [Start, End). Periods for
// one pixel are disjoint and ordered by Start.
type NightPeriod struct {
	Start int
	End   int
}

// Duration returns the length of the period in time steps.
func (p NightPeriod) Duration() int { return p.End - p.Start }

// isDay reports the day/night class of one sample.
func isDay(v float32) bool { return v != 0 }

// NightPeriods builds the ordered night-period list for one pixel series
// in a single forward scan. An always-night series yields one period
// spanning the whole series; an always-day series yields none.
func NightPeriods(series []float32) []NightPeriod {
	var periods []NightPeriod
	start := -1
	for t, v := range series {
		if isDay(v) {
			if start >= 0 {
				periods = append(periods, NightPeriod{Start: start, End: t})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = t
		}
	}
	if start >= 0 {
		periods = append(periods, NightPeriod{Start: start, End: len(series)})
	}
	return periods
}

// NightfallResult carries the forecast volume plus the global output
// extrema, which callers use as default display ranges.
type NightfallResult struct {
	Volume *raster.Volume
	// MaxDuration is the largest positive output (longest upcoming night
	// seen at any day sample); MinDuration the smallest negative output
	// (longest night any pixel is inside). Both are 0 when no night
	// periods exist anywhere.
	MaxDuration float64
	MinDuration float64
}

// NightfallForecast computes, per pixel and time step, how long the next
// night period will last (positive, at day samples) or how long the night
// currently in progress lasts (negative, at night samples). A day sample
// with no remaining night period outputs 0.
//
// Each pixel takes two passes: one forward scan building its night-period
// list, then one pass over the time axis with two monotonic cursors, so
// the whole forecast is O(time) per pixel.
func NightfallForecast(vol *raster.Volume) *NightfallResult {
	dims := vol.Dims
	out := raster.NewVolume(dims)
	result := &NightfallResult{Volume: out}

	series := make([]float32, dims.TimeSteps)
	for y := 0; y < dims.Height; y++ {
		for x := 0; x < dims.Width; x++ {
			for t := 0; t < dims.TimeSteps; t++ {
				series[t] = vol.At(t, y, x)
			}
			periods := NightPeriods(series)

			// ended advances past periods that are over; upcoming advances
			// past periods that have already started. Both only move
			// forward, so the pass never re-scans the period list.
			ended := 0
			upcoming := 0
			for t := 0; t < dims.TimeSteps; t++ {
				for ended < len(periods) && periods[ended].End <= t {
					ended++
				}
				for upcoming < len(periods) && periods[upcoming].Start <= t {
					upcoming++
				}

				var val float64
				if ended < len(periods) && periods[ended].Start <= t {
					// Inside a night period.
					val = -float64(periods[ended].Duration())
					if val < result.MinDuration {
						result.MinDuration = val
					}
				} else if upcoming < len(periods) {
					val = float64(periods[upcoming].Duration())
					if val > result.MaxDuration {
						result.MaxDuration = val
					}
				}
				out.Set(t, y, x, float32(val))
			}
		}
	}
	return result
}
