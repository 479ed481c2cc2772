// Package monitor exposes a read-only HTTP diagnostics surface for the
// analysis engine: slice-store counters, analysis-run history, and debug
// charts over streamed datasets. It never mutates engine state.
package monitor

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/selene-data/illumination.report/internal/catalog"
	"github.com/selene-data/illumination.report/internal/slicestore"
	"github.com/selene-data/illumination.report/internal/version"
)

// WebServer handles the HTTP diagnostics interface.
type WebServer struct {
	address string
	server  *http.Server
	db      *catalog.DB

	mu     sync.RWMutex
	stores map[string]*slicestore.Store
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	DB      *catalog.DB
}

// NewWebServer creates a diagnostics server. Stores are registered after
// construction as datasets are opened.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		db:      config.DB,
		stores:  make(map[string]*slicestore.Store),
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}
	return ws
}

// RegisterStore makes a slice store visible to the diagnostics endpoints
// under its dataset name.
func (ws *WebServer) RegisterStore(name string, store *slicestore.Store) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.stores[name] = store
}

// UnregisterStore removes a store, typically right before it is disposed.
func (ws *WebServer) UnregisterStore(name string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.stores, name)
}

func (ws *WebServer) store(name string) (*slicestore.Store, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	s, ok := ws.stores[name]
	return s, ok
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/stores", ws.handleStores)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/debug/daylight-chart", ws.handleDaylightChart)
	mux.HandleFunc("/debug/pixel-series.png", ws.handlePixelSeriesPlot)
	mux.HandleFunc("/debug/nightfall-histogram.png", ws.handleNightfallHistogram)
	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// Start runs the server until ctx is cancelled, then shuts it down.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("[Monitor] HTTP server listening on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Monitor] HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Monitor] HTTP server shutdown error: %v", err)
		return ws.server.Close()
	}
	return nil
}

// Handler exposes the route mux for tests.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

func (ws *WebServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Monitor] writing response: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]string{"status": "ok", "version": version.String()})
}

// storeStatus is one row of the /api/stores response.
type storeStatus struct {
	Name  string           `json:"name"`
	Dims  string           `json:"dims"`
	Stats slicestore.Stats `json:"stats"`
}

func (ws *WebServer) handleStores(w http.ResponseWriter, r *http.Request) {
	ws.mu.RLock()
	out := make([]storeStatus, 0, len(ws.stores))
	for name, s := range ws.stores {
		out = append(out, storeStatus{Name: name, Dims: s.Dims().String(), Stats: s.Stats()})
	}
	ws.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	ws.writeJSON(w, out)
}

func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no catalog attached")
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'run_id' parameter")
		return
	}
	run, err := ws.db.GetRun(runID)
	if err != nil {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	ws.writeJSON(w, run)
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
