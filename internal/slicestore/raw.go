package slicestore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/selene-data/illumination.report/internal/raster"
)

// rawLoader reads flat little-endian float32 volumes with positioned reads,
// so concurrent LoadSlice calls need no seek coordination.
type rawLoader struct {
	f    *os.File
	dims raster.Dims
}

func openRawLoader(path string, dims raster.Dims) (*rawLoader, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("raw dataset %s needs explicit dimensions, got %s", path, dims)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening raw dataset: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat raw dataset: %w", err)
	}
	want := int64(dims.TimeSteps) * int64(dims.SliceLen()) * 4
	if info.Size() != want {
		f.Close()
		return nil, fmt.Errorf("raw dataset %s is %d bytes, want %d for %s", path, info.Size(), want, dims)
	}
	return &rawLoader{f: f, dims: dims}, nil
}

func (l *rawLoader) Dims() raster.Dims { return l.dims }

func (l *rawLoader) LoadSlice(_ context.Context, t int) ([]float32, error) {
	n := l.dims.SliceLen()
	raw := make([]byte, n*4)
	if _, err := l.f.ReadAt(raw, int64(t)*int64(n)*4); err != nil {
		return nil, fmt.Errorf("reading slice %d: %w", t, err)
	}
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return buf, nil
}

func (l *rawLoader) Close() error { return l.f.Close() }

// WriteRaw writes a fully materialised volume in the raw flat format.
func WriteRaw(path string, vol *raster.Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating raw dataset: %w", err)
	}

	raw := make([]byte, len(vol.Data)*4)
	for i, v := range vol.Data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("writing raw dataset: %w", err)
	}
	return f.Close()
}
