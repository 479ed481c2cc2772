package compute

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/selene-data/illumination.report/internal/expr"
	"github.com/selene-data/illumination.report/internal/raster"
	"github.com/selene-data/illumination.report/internal/temporal"
)

// encodeFrame and decodeFrame are the boundary codec. Gob round-tripping
// every frame guarantees the two sides share no backing arrays.
func encodeFrame(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encoding compute frame: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeFrame(raw []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return fmt.Errorf("decoding compute frame: %w", err)
	}
	return nil
}

// workerLoop is the far side of the boundary: it decodes task frames,
// executes them sequentially, and encodes a response per task. Errors are
// captured into the response rather than thrown across the boundary; a
// panic inside an engine is converted to an error response too.
func workerLoop(tasks <-chan []byte, replies chan<- []byte, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case frame := <-tasks:
			resp := handleFrame(frame)
			raw, err := encodeFrame(resp)
			if err != nil {
				raw, _ = encodeFrame(response{ID: resp.ID, Err: err.Error()})
			}
			select {
			case replies <- raw:
			case <-stop:
				return
			}
		}
	}
}

func handleFrame(frame []byte) response {
	var req request
	if err := decodeFrame(frame, &req); err != nil {
		// Echo whatever id the partial decode recovered; a zero id
		// resolves no pending entry and the reply is logged as orphaned
		// on the near side.
		return response{ID: req.ID, Err: err.Error()}
	}

	result, err := runTask(&req.Task)
	if err != nil {
		return response{ID: req.ID, Err: err.Error()}
	}
	return response{ID: req.ID, Result: result}
}

// runTask dispatches to the requested engine.
func runTask(task *Task) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("compute task panicked: %v", r)
		}
	}()

	switch task.Kind {
	case TaskExpression:
		return runExpression(task)
	case TaskNightfall:
		return runNightfall(task)
	case TaskDaylight:
		return runDaylight(task)
	default:
		return nil, fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

func runExpression(task *Task) (*Result, error) {
	bindings := make(map[string]*raster.Volume, len(task.Layers))
	var reference *raster.Volume
	for _, entry := range task.Layers {
		if entry.Kind != LayerData {
			continue // metadata-only entries are not bound
		}
		vol, err := entry.volume()
		if err != nil {
			return nil, err
		}
		bindings[entry.Name] = vol
		reference = vol
	}

	out, err := expr.EvaluateVolume(task.Expression, bindings, reference)
	if err != nil {
		return nil, err
	}
	return &Result{Volume: out, Range: raster.Range{Min: 0, Max: 1}}, nil
}

func runNightfall(task *Task) (*Result, error) {
	vol, err := task.Source.volume()
	if err != nil {
		return nil, err
	}
	forecast := temporal.NightfallForecast(vol)
	return &Result{
		Volume: forecast.Volume,
		Range:  raster.Range{Min: forecast.MinDuration, Max: forecast.MaxDuration},
	}, nil
}

func runDaylight(task *Task) (*Result, error) {
	vol, err := task.Source.volume()
	if err != nil {
		return nil, err
	}
	grid := temporal.DaylightFraction(vol, task.RangeStart, task.RangeEnd)
	summary := temporal.SummarizeFractions(grid)
	return &Result{
		Fractions: grid,
		Summary:   &summary,
		Range:     raster.Range{Min: 0, Max: 100},
	}, nil
}
