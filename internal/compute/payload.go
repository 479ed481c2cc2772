// Package compute runs expression and temporal-analysis workloads in a
// compute context isolated from the interactive caller. Tasks and results
// cross the boundary as gob-encoded frames, never as shared memory: every
// raster volume a task needs is serialised into its payload, and the far
// side reconstructs fresh bindings before invoking the engines.
package compute

import (
	"fmt"

	"github.com/selene-data/illumination.report/internal/raster"
	"github.com/selene-data/illumination.report/internal/temporal"
)

// TaskKind selects the algorithm a task runs.
type TaskKind string

const (
	TaskExpression TaskKind = "expression"
	TaskNightfall  TaskKind = "nightfall"
	TaskDaylight   TaskKind = "daylight"
)

// LayerEntryKind says explicitly whether a manifest entry carries sample
// data. There is no ambiguity for the receiving side to resolve: LayerData
// entries are bound, LayerRef entries are metadata only and any task that
// needs their samples fails by name.
type LayerEntryKind string

const (
	LayerData LayerEntryKind = "data"
	LayerRef  LayerEntryKind = "ref"
)

// LayerEntry is one entry of a task's layer manifest. Name is the
// sanitized identifier the expression language sees.
type LayerEntry struct {
	Kind    LayerEntryKind
	Name    string
	Dims    raster.Dims
	Samples []float32 // populated iff Kind == LayerData
}

// DataLayer builds a manifest entry carrying a volume's samples.
func DataLayer(name string, vol *raster.Volume) LayerEntry {
	return LayerEntry{Kind: LayerData, Name: name, Dims: vol.Dims, Samples: vol.Data}
}

// RefLayer builds a metadata-only manifest entry.
func RefLayer(name string, dims raster.Dims) LayerEntry {
	return LayerEntry{Kind: LayerRef, Name: name, Dims: dims}
}

// volume reconstructs a bound volume from a data-carrying entry.
func (e LayerEntry) volume() (*raster.Volume, error) {
	if e.Kind != LayerData {
		return nil, fmt.Errorf("layer %q carries no dataset", e.Name)
	}
	want := e.Dims.TimeSteps * e.Dims.SliceLen()
	if !e.Dims.Valid() || len(e.Samples) != want {
		return nil, fmt.Errorf("layer %q payload has %d samples, want %d for %s",
			e.Name, len(e.Samples), want, e.Dims)
	}
	return &raster.Volume{Dims: e.Dims, Data: e.Samples}, nil
}

// Task is one unit of compute work. Expression tasks use Expression and
// Layers; nightfall and daylight tasks use Source, and daylight tasks
// additionally the inclusive [RangeStart, RangeEnd] time range.
type Task struct {
	Kind       TaskKind
	Expression string
	Layers     []LayerEntry
	Source     LayerEntry
	RangeStart int
	RangeEnd   int
}

// Result is the successful outcome of a task. Expression and nightfall
// tasks fill Volume and Range; daylight tasks fill Fractions, Summary and
// Range.
type Result struct {
	Volume    *raster.Volume
	Range     raster.Range
	Fractions *temporal.FractionGrid
	Summary   *temporal.Summary
}

// request and response are the frames exchanged across the isolation
// boundary, correlated by ID.
type request struct {
	ID   uint64
	Task Task
}

type response struct {
	ID     uint64
	Result *Result
	Err    string
}
