// Package slicestore provides lazy, memory-bounded access to temporal
// raster volumes too large to materialise: format-specific slice loaders
// behind a strategy interface, and an LRU-cached Store on top of them.
package slicestore

import (
	"context"
	"fmt"

	"github.com/selene-data/illumination.report/internal/raster"
)

// SliceLoader is the format-specific collaborator that fetches one time
// slice of a dataset. Implementations correspond to distinct container
// layouts and are selected once per dataset via the Format discriminant;
// the Store never branches on format per call.
//
// LoadSlice returns a buffer of exactly Dims().Height*Dims().Width samples
// for the given time index. Close releases the underlying resource handle.
type SliceLoader interface {
	Dims() raster.Dims
	LoadSlice(ctx context.Context, t int) ([]float32, error)
	Close() error
}

// Format discriminates dataset container layouts.
type Format string

const (
	// FormatRaw is a flat little-endian float32 file, time-major then
	// row-major, with no header; dimensions come from catalog metadata.
	FormatRaw Format = "raw"
	// FormatSliceBlob is a file of per-slice gzip+gob blobs with a
	// trailing gob-encoded index; dimensions come from the index.
	FormatSliceBlob Format = "sliceblob"
)

// OpenLoader selects and opens the loader strategy for a dataset. The dims
// argument is required for FormatRaw (the format is headerless) and is
// ignored for FormatSliceBlob, whose index carries its own shape.
func OpenLoader(path string, format Format, dims raster.Dims) (SliceLoader, error) {
	switch format {
	case FormatRaw:
		return openRawLoader(path, dims)
	case FormatSliceBlob:
		return openBlobLoader(path)
	default:
		return nil, fmt.Errorf("unknown dataset format %q", format)
	}
}
