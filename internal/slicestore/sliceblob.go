package slicestore

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/selene-data/illumination.report/internal/raster"
)

// The sliceblob container stores each time slice as an independent
// gzip-compressed gob blob so slices can be fetched without touching the
// rest of the file. A gob-encoded index sits at the tail, followed by an
// 8-byte little-endian index length.

// blobIndex locates every slice blob within the file.
type blobIndex struct {
	Dims    raster.Dims
	Offsets []int64
	Lengths []int64
}

// BlobWriter streams a volume into the sliceblob container one slice at a
// time; Close writes the index. Slices must be appended in time order.
type BlobWriter struct {
	f     *os.File
	index blobIndex
	pos   int64
}

// NewBlobWriter creates a sliceblob file for a volume of the given shape.
func NewBlobWriter(path string, dims raster.Dims) (*BlobWriter, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("invalid volume shape %s", dims)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating sliceblob dataset: %w", err)
	}
	return &BlobWriter{f: f, index: blobIndex{Dims: dims}}, nil
}

// AppendSlice compresses and writes the next time slice.
func (w *BlobWriter) AppendSlice(samples []float32) error {
	if len(samples) != w.index.Dims.SliceLen() {
		return fmt.Errorf("slice has %d samples, want %d", len(samples), w.index.Dims.SliceLen())
	}
	if len(w.index.Offsets) >= w.index.Dims.TimeSteps {
		return fmt.Errorf("volume already has all %d slices", w.index.Dims.TimeSteps)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(samples); err != nil {
		gz.Close()
		return fmt.Errorf("encoding slice %d: %w", len(w.index.Offsets), err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compressing slice %d: %w", len(w.index.Offsets), err)
	}

	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing slice %d: %w", len(w.index.Offsets), err)
	}
	w.index.Offsets = append(w.index.Offsets, w.pos)
	w.index.Lengths = append(w.index.Lengths, int64(buf.Len()))
	w.pos += int64(buf.Len())
	return nil
}

// Close writes the index footer and closes the file. Every slice declared
// by the shape must have been appended.
func (w *BlobWriter) Close() error {
	if len(w.index.Offsets) != w.index.Dims.TimeSteps {
		w.f.Close()
		return fmt.Errorf("wrote %d of %d slices", len(w.index.Offsets), w.index.Dims.TimeSteps)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w.index); err != nil {
		w.f.Close()
		return fmt.Errorf("encoding index: %w", err)
	}
	var trailer [8]byte
	binary.LittleEndian.PutUint64(trailer[:], uint64(buf.Len()))
	buf.Write(trailer[:])

	if _, err := w.f.Write(buf.Bytes()); err != nil {
		w.f.Close()
		return fmt.Errorf("writing index: %w", err)
	}
	return w.f.Close()
}

// WriteSliceBlob writes a fully materialised volume as a sliceblob file.
func WriteSliceBlob(path string, vol *raster.Volume) error {
	w, err := NewBlobWriter(path, vol.Dims)
	if err != nil {
		return err
	}
	for t := 0; t < vol.Dims.TimeSteps; t++ {
		if err := w.AppendSlice(vol.Slice(t)); err != nil {
			w.f.Close()
			return err
		}
	}
	return w.Close()
}

// blobLoader serves random slice reads from a sliceblob file.
type blobLoader struct {
	f     *os.File
	index blobIndex
}

func openBlobLoader(path string) (*blobLoader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sliceblob dataset: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat sliceblob dataset: %w", err)
	}
	if info.Size() < 8 {
		f.Close()
		return nil, fmt.Errorf("sliceblob dataset %s truncated", path)
	}

	var trailer [8]byte
	if _, err := f.ReadAt(trailer[:], info.Size()-8); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading index trailer: %w", err)
	}
	indexLen := int64(binary.LittleEndian.Uint64(trailer[:]))
	if indexLen <= 0 || indexLen > info.Size()-8 {
		f.Close()
		return nil, fmt.Errorf("sliceblob dataset %s has corrupt index trailer", path)
	}

	raw := make([]byte, indexLen)
	if _, err := f.ReadAt(raw, info.Size()-8-indexLen); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading index: %w", err)
	}
	var index blobIndex
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&index); err != nil {
		f.Close()
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	if !index.Dims.Valid() || len(index.Offsets) != index.Dims.TimeSteps || len(index.Lengths) != index.Dims.TimeSteps {
		f.Close()
		return nil, fmt.Errorf("sliceblob dataset %s has inconsistent index", path)
	}
	return &blobLoader{f: f, index: index}, nil
}

func (l *blobLoader) Dims() raster.Dims { return l.index.Dims }

func (l *blobLoader) LoadSlice(_ context.Context, t int) ([]float32, error) {
	raw := make([]byte, l.index.Lengths[t])
	if _, err := l.f.ReadAt(raw, l.index.Offsets[t]); err != nil {
		return nil, fmt.Errorf("reading slice %d: %w", t, err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decompressing slice %d: %w", t, err)
	}
	defer gz.Close()

	var samples []float32
	if err := gob.NewDecoder(gz).Decode(&samples); err != nil {
		return nil, fmt.Errorf("decoding slice %d: %w", t, err)
	}
	if len(samples) != l.index.Dims.SliceLen() {
		return nil, fmt.Errorf("slice %d has %d samples, want %d", t, len(samples), l.index.Dims.SliceLen())
	}
	return samples, nil
}

func (l *blobLoader) Close() error { return l.f.Close() }

var (
	_ SliceLoader = (*rawLoader)(nil)
	_ SliceLoader = (*blobLoader)(nil)
)
