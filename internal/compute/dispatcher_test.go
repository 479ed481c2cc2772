package compute

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/selene-data/illumination.report/internal/monitoring"
	"github.com/selene-data/illumination.report/internal/raster"
)

func init() {
	monitoring.SetLogger(nil)
}

func binaryVolume(t *testing.T, series []float32) *raster.Volume {
	t.Helper()
	slices := make([][]float32, len(series))
	for i, v := range series {
		slices[i] = []float32{v}
	}
	vol, err := raster.FromSlices(slices, 1, 1)
	if err != nil {
		t.Fatalf("FromSlices: %v", err)
	}
	return vol
}

func TestSubmitExpressionTask(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	illum := binaryVolume(t, []float32{0.8, 0.2, 0.9})
	result, err := d.Submit(context.Background(), Task{
		Kind:       TaskExpression,
		Expression: "illum > 0.5",
		Layers:     []LayerEntry{DataLayer("illum", illum)},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	want := []float32{1, 0, 1}
	for ts, w := range want {
		if got := result.Volume.At(ts, 0, 0); got != w {
			t.Errorf("output[%d] = %v, want %v", ts, got, w)
		}
	}
	if result.Range != (raster.Range{Min: 0, Max: 1}) {
		t.Errorf("Range = %+v, want [0,1]", result.Range)
	}

	// The result volume must be a reconstruction, not the caller's array.
	result.Volume.Set(0, 0, 0, 42)
	if illum.At(0, 0, 0) == 42 {
		t.Error("result volume aliases the submitted volume across the boundary")
	}
}

func TestSubmitNightfallTask(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	source := binaryVolume(t, []float32{1, 1, 0, 0, 0, 1, 1})
	result, err := d.Submit(context.Background(), Task{
		Kind:   TaskNightfall,
		Source: DataLayer("illum", source),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if got := result.Volume.At(0, 0, 0); got != 3 {
		t.Errorf("output[0] = %v, want 3", got)
	}
	if got := result.Volume.At(2, 0, 0); got != -3 {
		t.Errorf("output[2] = %v, want -3", got)
	}
	if result.Range.Min != -3 || result.Range.Max != 3 {
		t.Errorf("Range = %+v, want [-3,3]", result.Range)
	}
}

func TestSubmitDaylightTask(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	source := binaryVolume(t, []float32{1, 1, 0, 1, 1, 0, 1, 1, 0, 1})
	result, err := d.Submit(context.Background(), Task{
		Kind:       TaskDaylight,
		Source:     DataLayer("illum", source),
		RangeStart: 0,
		RangeEnd:   9,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if got := result.Fractions.At(0, 0); got != 70 {
		t.Errorf("fraction = %v, want 70", got)
	}
	if result.Summary == nil || result.Summary.Count != 1 {
		t.Errorf("Summary = %+v, want one pixel", result.Summary)
	}
}

func TestSubmitDaylightRangeEndInclusive(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	// Steps 0 and 1 only: one day sample of two.
	source := binaryVolume(t, []float32{1, 0, 1, 1})
	result, err := d.Submit(context.Background(), Task{
		Kind:       TaskDaylight,
		Source:     DataLayer("illum", source),
		RangeStart: 0,
		RangeEnd:   1,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := result.Fractions.At(0, 0); got != 50 {
		t.Errorf("fraction over steps 0..1 = %v, want 50", got)
	}
}

func TestWorkerSurvivesUndecodableFrame(t *testing.T) {
	tasks := make(chan []byte)
	replies := make(chan []byte)
	stop := make(chan struct{})
	defer close(stop)
	go workerLoop(tasks, replies, stop)

	// A frame that is not a gob stream must come back as an error reply,
	// not kill the worker.
	tasks <- []byte("not a frame")
	var resp response
	if err := decodeFrame(<-replies, &resp); err != nil {
		t.Fatalf("decoding error reply: %v", err)
	}
	if resp.Err == "" {
		t.Error("expected an error reply for the undecodable frame")
	}

	// The worker keeps serving well-formed frames afterwards.
	frame, err := encodeFrame(request{ID: 7, Task: Task{
		Kind:   TaskNightfall,
		Source: DataLayer("illum", binaryVolume(t, []float32{1, 0})),
	}})
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	tasks <- frame
	// Gob omits zero-valued fields, so decode into a zeroed response to
	// avoid inheriting the previous reply's Err.
	resp = response{}
	if err := decodeFrame(<-replies, &resp); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if resp.ID != 7 || resp.Err != "" {
		t.Errorf("reply = {ID:%d Err:%q}, want a clean reply for id 7", resp.ID, resp.Err)
	}
}

func TestSubmitErrorsRelayedWithMessage(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	illum := binaryVolume(t, []float32{1})
	_, err := d.Submit(context.Background(), Task{
		Kind:       TaskExpression,
		Expression: "C > 1",
		Layers:     []LayerEntry{DataLayer("illum", illum)},
	})
	if err == nil {
		t.Fatal("expected evaluation error")
	}
	if !strings.Contains(err.Error(), "C") {
		t.Errorf("error should carry the original message naming C, got %v", err)
	}
}

func TestSubmitRefLayerNotBound(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	illum := binaryVolume(t, []float32{1})
	_, err := d.Submit(context.Background(), Task{
		Kind:       TaskExpression,
		Expression: "illum AND streamed",
		Layers: []LayerEntry{
			DataLayer("illum", illum),
			RefLayer("streamed", illum.Dims),
		},
	})
	if err == nil {
		t.Fatal("expected error: ref entries carry no samples to bind")
	}
	if !strings.Contains(err.Error(), "streamed") {
		t.Errorf("error should name the unbound layer, got %v", err)
	}
}

func TestSubmitNightfallNeedsData(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	_, err := d.Submit(context.Background(), Task{
		Kind:   TaskNightfall,
		Source: RefLayer("illum", raster.Dims{TimeSteps: 1, Height: 1, Width: 1}),
	})
	if err == nil || !strings.Contains(err.Error(), "illum") {
		t.Errorf("expected error naming the sourceless layer, got %v", err)
	}
}

func TestIndependentTasksResolveIndependently(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	volumes := []*raster.Volume{
		binaryVolume(t, []float32{1, 0}),
		binaryVolume(t, []float32{0, 1}),
	}
	for i := range volumes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Submit(context.Background(), Task{
				Kind:   TaskNightfall,
				Source: DataLayer("illum", volumes[i]),
			})
		}(i)
	}
	wg.Wait()

	for i := range volumes {
		if errs[i] != nil {
			t.Fatalf("task %d: %v", i, errs[i])
		}
	}
	if got := results[0].Volume.At(1, 0, 0); got != -1 {
		t.Errorf("task 0 output[1] = %v, want -1", got)
	}
	if got := results[1].Volume.At(0, 0, 0); got != -1 {
		t.Errorf("task 1 output[0] = %v, want -1", got)
	}
}

func TestUnknownTaskKind(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	_, err := d.Submit(context.Background(), Task{Kind: TaskKind("resample")})
	if err == nil || !strings.Contains(err.Error(), "resample") {
		t.Errorf("expected unknown kind error, got %v", err)
	}
}

func TestCloseRejectsPendingAndRefusesSubmissions(t *testing.T) {
	d := NewDispatcher()

	// Occupy the worker with a long task, then close mid-flight.
	big := raster.NewVolume(raster.Dims{TimeSteps: 200, Height: 64, Width: 64})
	done := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), Task{
			Kind:   TaskNightfall,
			Source: DataLayer("illum", big),
		})
		done <- err
	}()

	time.Sleep(5 * time.Millisecond)
	d.Close()

	select {
	case err := <-done:
		// Either the task finished first or it was rejected on close;
		// it must not hang.
		if err != nil && err != ErrClosed {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending submit did not unblock on Close")
	}

	if _, err := d.Submit(context.Background(), Task{Kind: TaskNightfall}); err != ErrClosed {
		t.Errorf("submit after close = %v, want ErrClosed", err)
	}

	// Idempotent.
	d.Close()
}

func TestSubmitContextAbandonment(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	// Occupy the sequential worker so the next submission has to queue.
	big := raster.NewVolume(raster.Dims{TimeSteps: 500, Height: 128, Width: 128})
	go d.Submit(context.Background(), Task{
		Kind:   TaskNightfall,
		Source: DataLayer("illum", big),
	})
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Submit(ctx, Task{
		Kind:   TaskNightfall,
		Source: DataLayer("illum", binaryVolume(t, []float32{1, 0})),
	})
	if err != context.Canceled {
		t.Errorf("Submit with cancelled ctx = %v, want context.Canceled", err)
	}

	// The dispatcher stays usable for the next caller.
	if _, err := d.Submit(context.Background(), Task{
		Kind:   TaskNightfall,
		Source: DataLayer("illum", binaryVolume(t, []float32{1, 0})),
	}); err != nil {
		t.Errorf("follow-up submit failed: %v", err)
	}
}
