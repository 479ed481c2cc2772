package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/selene-data/illumination.report/internal/catalog"
	"github.com/selene-data/illumination.report/internal/raster"
	"github.com/selene-data/illumination.report/internal/slicestore"
)

// testServer builds a WebServer with one registered store backed by a raw
// volume file: a 4-step 2x2 grid where pixel (0,0) is lit on steps 0 and 1.
func testServer(t *testing.T) (*WebServer, *slicestore.Store) {
	t.Helper()

	dims := raster.Dims{TimeSteps: 4, Height: 2, Width: 2}
	vol := raster.NewVolume(dims)
	vol.Set(0, 0, 0, 1)
	vol.Set(1, 0, 0, 1)
	for tt := 0; tt < dims.TimeSteps; tt++ {
		vol.Set(tt, 1, 1, 1)
	}

	path := filepath.Join(t.TempDir(), "test.rawvol")
	if err := slicestore.WriteRaw(path, vol); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	loader, err := slicestore.OpenLoader(path, slicestore.FormatRaw, dims)
	if err != nil {
		t.Fatalf("OpenLoader: %v", err)
	}
	store := slicestore.New(loader, slicestore.Config{PreloadDistance: -1})
	t.Cleanup(func() { store.Dispose() })

	ws := NewWebServer(WebServerConfig{Address: "127.0.0.1:0"})
	ws.RegisterStore("moonvol", store)
	return ws, store
}

func TestHealthEndpoint(t *testing.T) {
	ws, _ := testServer(t)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStoresEndpoint(t *testing.T) {
	ws, store := testServer(t)

	// Drive one hit so counters are non-trivial.
	if _, err := store.GetSlice(context.Background(), 0); err != nil {
		t.Fatalf("GetSlice: %v", err)
	}

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/stores", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rows []storeStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "moonvol" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Stats.Misses == 0 {
		t.Errorf("expected at least one recorded miss, got %+v", rows[0].Stats)
	}
}

func TestDaylightChart(t *testing.T) {
	ws, _ := testServer(t)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/daylight-chart?store=moonvol", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("echarts")) {
		t.Error("expected rendered chart markup in response")
	}
}

func TestDaylightChartUnknownStore(t *testing.T) {
	ws, _ := testServer(t)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/daylight-chart?store=nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPixelSeriesPlot(t *testing.T) {
	ws, _ := testServer(t)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/pixel-series.png?store=moonvol&y=0&x=0", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("unexpected content type %q", ct)
	}
	pngMagic := []byte{0x89, 'P', 'N', 'G'}
	if !bytes.HasPrefix(rec.Body.Bytes(), pngMagic) {
		t.Error("response is not a PNG")
	}
}

func TestPixelSeriesPlotOutOfBounds(t *testing.T) {
	ws, _ := testServer(t)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/pixel-series.png?store=moonvol&y=9&x=0", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestNightfallHistogram(t *testing.T) {
	ws, _ := testServer(t)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/nightfall-histogram.png?store=moonvol", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestRunsEndpointWithoutCatalog(t *testing.T) {
	ws, _ := testServer(t)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs?run_id=abc", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTailsqlRouteWithCatalog(t *testing.T) {
	db, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ws := NewWebServer(WebServerConfig{Address: "127.0.0.1:0", DB: db})

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/tailsql/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestFractionFromStore(t *testing.T) {
	_, store := testServer(t)

	grid, err := fractionFromStore(context.Background(), store, 0, 4)
	if err != nil {
		t.Fatalf("fractionFromStore: %v", err)
	}
	if got := grid.At(0, 0); got != 50 {
		t.Errorf("pixel (0,0): expected 50%%, got %v", got)
	}
	if got := grid.At(1, 1); got != 100 {
		t.Errorf("pixel (1,1): expected 100%%, got %v", got)
	}
	if got := grid.At(0, 1); got != 0 {
		t.Errorf("pixel (0,1): expected 0%%, got %v", got)
	}

	// Degenerate range yields an all-zero grid rather than an error.
	empty, err := fractionFromStore(context.Background(), store, 3, 3)
	if err != nil {
		t.Fatalf("fractionFromStore degenerate: %v", err)
	}
	for i, v := range empty.Data {
		if v != 0 {
			t.Fatalf("expected zero grid, index %d = %v", i, v)
		}
	}
}
