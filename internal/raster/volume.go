// Package raster holds the in-memory temporal raster model shared by the
// analysis engine: a Volume is a time-ordered stack of row-major 2D slices.
package raster

import (
	"fmt"
	"strings"
)

// Dims describes the shape of a Volume: time steps, then rows, then columns.
type Dims struct {
	TimeSteps int
	Height    int
	Width     int
}

// Equal reports whether two shapes match exactly in all three axes.
func (d Dims) Equal(o Dims) bool {
	return d.TimeSteps == o.TimeSteps && d.Height == o.Height && d.Width == o.Width
}

// SliceLen returns the number of samples in one time slice.
func (d Dims) SliceLen() int { return d.Height * d.Width }

// Valid reports whether every axis is positive.
func (d Dims) Valid() bool {
	return d.TimeSteps > 0 && d.Height > 0 && d.Width > 0
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.TimeSteps, d.Height, d.Width)
}

// Volume is a fully materialised temporal raster. Samples are stored in a
// single backing array ordered time-major, then row-major within a slice.
// A Volume is immutable once produced; the producer owns the backing array
// until it hands the Volume off.
type Volume struct {
	Dims Dims
	Data []float32 // len = TimeSteps * Height * Width
}

// NewVolume allocates a zero-filled volume of the given shape.
func NewVolume(dims Dims) *Volume {
	return &Volume{
		Dims: dims,
		Data: make([]float32, dims.TimeSteps*dims.SliceLen()),
	}
}

// Idx converts (t, y, x) to a backing-array index.
func (v *Volume) Idx(t, y, x int) int {
	return t*v.Dims.SliceLen() + y*v.Dims.Width + x
}

// At returns the sample at (t, y, x). Bounds are the caller's contract.
func (v *Volume) At(t, y, x int) float32 { return v.Data[v.Idx(t, y, x)] }

// Set writes the sample at (t, y, x).
func (v *Volume) Set(t, y, x int, val float32) { v.Data[v.Idx(t, y, x)] = val }

// Slice returns the backing subarray for time step t. The returned slice
// aliases the volume; callers must not retain it past the volume's lifetime.
func (v *Volume) Slice(t int) []float32 {
	n := v.Dims.SliceLen()
	return v.Data[t*n : (t+1)*n]
}

// PixelSeries copies the full time series for one pixel into a new slice.
func (v *Volume) PixelSeries(y, x int) []float32 {
	out := make([]float32, v.Dims.TimeSteps)
	for t := 0; t < v.Dims.TimeSteps; t++ {
		out[t] = v.At(t, y, x)
	}
	return out
}

// FromSlices assembles a volume from per-time-step buffers. Every buffer
// must contain exactly height*width samples.
func FromSlices(slices [][]float32, height, width int) (*Volume, error) {
	dims := Dims{TimeSteps: len(slices), Height: height, Width: width}
	if !dims.Valid() {
		return nil, fmt.Errorf("invalid volume shape %s", dims)
	}
	vol := NewVolume(dims)
	for t, s := range slices {
		if len(s) != dims.SliceLen() {
			return nil, fmt.Errorf("slice %d has %d samples, want %d", t, len(s), dims.SliceLen())
		}
		copy(vol.Slice(t), s)
	}
	return vol, nil
}

// Range is the declared numeric display range of a derived volume.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SanitizeName maps a layer name to a legal expression identifier by
// replacing every character outside [A-Za-z0-9_] with an underscore.
// A leading digit gains an underscore prefix. Uniqueness of the results
// is the caller's responsibility.
func SanitizeName(layer string) string {
	var b strings.Builder
	for _, r := range layer {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" {
		return "_"
	}
	if s[0] >= '0' && s[0] <= '9' {
		return "_" + s
	}
	return s
}
