// Command gen-debugvol generates a synthetic illumination volume with
// recognisable test patterns, for exercising the analysis pipeline without
// real mission data. Frames cycle through a checkerboard with corner
// markers, horizontal and vertical sine bands, and a sparse grid overlay.
package main

import (
	"flag"
	"log"
	"math"

	"github.com/selene-data/illumination.report/internal/raster"
	"github.com/selene-data/illumination.report/internal/slicestore"
)

var (
	output    = flag.String("o", "debug_illumination.rawvol", "output path")
	format    = flag.String("format", "raw", "container format: raw or sliceblob")
	steps     = flag.Int("n", 12, "number of time steps")
	height    = flag.Int("height", 128, "grid height in pixels")
	width     = flag.Int("width", 128, "grid width in pixels")
	threshold = flag.Float64("threshold", 0, "binarise output: values above become 1, others 0 (0 disables)")
)

// checkerFrame fills a base level with an alternating block pattern and
// bright corner markers, so orientation mistakes show up immediately.
func checkerFrame(vol *raster.Volume, t, h, w int) {
	const block = 16
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float32(0.2)
			if (x/block)%2 == (y/block)%2 {
				v = 0.4
			}
			vol.Set(t, y, x, v)
		}
	}

	// Corner markers: TL brightest, BR dark.
	sy, sx := h/10, w/10
	if sy < 1 {
		sy = 1
	}
	if sx < 1 {
		sx = 1
	}
	for y := 0; y < sy; y++ {
		for x := 0; x < sx; x++ {
			vol.Set(t, y, x, 1.0)
			vol.Set(t, y, w-1-x, 0.8)
			vol.Set(t, h-1-y, x, 0.6)
			vol.Set(t, h-1-y, w-1-x, 0.0)
		}
	}
}

// sineFrame fills sine bands along one axis.
func sineFrame(vol *raster.Volume, t, h, w int, vertical bool) {
	const period = 32.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pos := float64(y)
			if vertical {
				pos = float64(x)
			}
			v := 0.5 + 0.5*math.Sin(2*math.Pi*pos/period)
			vol.Set(t, y, x, float32(v))
		}
	}
}

// gridFrame draws sparse bright grid lines over a dim base.
func gridFrame(vol *raster.Volume, t, h, w int) {
	const spacing = 24
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float32(0.1)
			if y%spacing == 0 {
				v = 0.5
			}
			if x%spacing == 0 {
				v = 1.0
			}
			vol.Set(t, y, x, v)
		}
	}
}

func main() {
	flag.Parse()

	dims := raster.Dims{TimeSteps: *steps, Height: *height, Width: *width}
	if !dims.Valid() {
		log.Fatalf("invalid dimensions %s", dims)
	}
	vol := raster.NewVolume(dims)

	for t := 0; t < *steps; t++ {
		switch t % 4 {
		case 0:
			checkerFrame(vol, t, *height, *width)
		case 1:
			sineFrame(vol, t, *height, *width, false)
		case 2:
			sineFrame(vol, t, *height, *width, true)
		case 3:
			gridFrame(vol, t, *height, *width)
		}
	}

	if *threshold > 0 {
		for i, v := range vol.Data {
			if float64(v) > *threshold {
				vol.Data[i] = 1
			} else {
				vol.Data[i] = 0
			}
		}
	}

	var err error
	switch slicestore.Format(*format) {
	case slicestore.FormatRaw:
		err = slicestore.WriteRaw(*output, vol)
	case slicestore.FormatSliceBlob:
		err = slicestore.WriteSliceBlob(*output, vol)
	default:
		log.Fatalf("unknown format %q", *format)
	}
	if err != nil {
		log.Fatalf("failed to write volume: %v", err)
	}
	log.Printf("✓ Created: %s (%s, %s)", *output, *format, dims)
}
