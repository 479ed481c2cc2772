package slicestore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/selene-data/illumination.report/internal/monitoring"
	"github.com/selene-data/illumination.report/internal/raster"
)

// ErrDisposed is returned by any access after Dispose.
var ErrDisposed = errors.New("slice store disposed")

const (
	// DefaultCapacity is the default number of resident slices.
	DefaultCapacity = 20
	// DefaultPreloadDistance is how far around a hit index the store
	// prefetches (t±1..±distance).
	DefaultPreloadDistance = 2
)

// Config tunes a Store. A zero Capacity or PreloadDistance takes the
// default; a negative PreloadDistance disables prefetching entirely.
type Config struct {
	Capacity        int
	PreloadDistance int
}

// Stats is a read-only snapshot of the store's counters. MemoryBytes is
// the estimated resident footprint: cached slices × bytes per slice.
type Stats struct {
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	Evictions    uint64 `json:"evictions"`
	CachedSlices int    `json:"cached_slices"`
	MemoryBytes  int64  `json:"memory_bytes"`
}

// inflightLoad coalesces concurrent loads of the same slice: every caller
// for the index blocks on done and shares the one outcome.
type inflightLoad struct {
	done chan struct{}
	buf  []float32
	err  error
}

// Store presents slice- and pixel-level access to a raster backed by a
// SliceLoader, keeping at most Capacity slices resident under strict LRU
// eviction (ties by insertion order: append-at-tail, evict-from-head).
//
// All internal tables are mutated only inside the Store; loads and compute
// never touch them from outside.
type Store struct {
	mu       sync.Mutex
	loader   SliceLoader
	dims     raster.Dims
	capacity int
	preload  int

	cache    map[int][]float32
	order    []int // access queue, least recently used at the head
	inflight map[int]*inflightLoad

	hits      uint64
	misses    uint64
	evictions uint64
	disposed  bool

	logf func(format string, v ...interface{})
}

// New wraps a loader in an LRU store. The store takes ownership of the
// loader; Dispose closes it.
func New(loader SliceLoader, cfg Config) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.PreloadDistance < 0 {
		cfg.PreloadDistance = 0
	} else if cfg.PreloadDistance == 0 {
		cfg.PreloadDistance = DefaultPreloadDistance
	}
	return &Store{
		loader:   loader,
		dims:     loader.Dims(),
		capacity: cfg.Capacity,
		preload:  cfg.PreloadDistance,
		cache:    make(map[int][]float32),
		inflight: make(map[int]*inflightLoad),
		logf:     monitoring.Component("SliceStore"),
	}
}

// Dims returns the shape of the backing dataset.
func (s *Store) Dims() raster.Dims { return s.dims }

// GetSlice returns the samples for time index t, loading on demand.
// Concurrent calls for the same uncached index share one underlying load.
// The returned buffer is owned by the cache; callers must not mutate it.
func (s *Store) GetSlice(ctx context.Context, t int) ([]float32, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrDisposed
	}
	if t < 0 || t >= s.dims.TimeSteps {
		s.mu.Unlock()
		return nil, fmt.Errorf("slice index %d outside [0,%d)", t, s.dims.TimeSteps)
	}

	if buf, ok := s.cache[t]; ok {
		s.hits++
		s.touch(t)
		s.mu.Unlock()
		s.prefetchAround(t)
		return buf, nil
	}

	if fl, ok := s.inflight[t]; ok {
		// Coalesce onto the pending load.
		s.misses++
		s.mu.Unlock()
		select {
		case <-fl.done:
			return fl.buf, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.misses++
	fl := &inflightLoad{done: make(chan struct{})}
	s.inflight[t] = fl
	s.mu.Unlock()

	s.load(ctx, t, fl)
	return fl.buf, fl.err
}

// load runs the loader for t and publishes the outcome on fl. The
// in-flight entry is removed whether the load succeeds or fails; failed
// loads are never cached, so a retry is possible.
func (s *Store) load(ctx context.Context, t int, fl *inflightLoad) {
	buf, err := s.loader.LoadSlice(ctx, t)

	s.mu.Lock()
	delete(s.inflight, t)
	if err == nil && !s.disposed {
		s.insert(t, buf)
	}
	s.mu.Unlock()

	fl.buf, fl.err = buf, err
	close(fl.done)
}

// insert caches a freshly loaded slice, evicting the LRU head first if at
// capacity. Caller holds s.mu.
func (s *Store) insert(t int, buf []float32) {
	if _, ok := s.cache[t]; ok {
		s.touch(t)
		s.cache[t] = buf
		return
	}
	if len(s.cache) >= s.capacity {
		victim := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, victim)
		s.evictions++
	}
	s.cache[t] = buf
	s.order = append(s.order, t)
}

// touch moves t to the most-recently-used tail. Caller holds s.mu.
func (s *Store) touch(t int) {
	for i, v := range s.order {
		if v == t {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, t)
}

// prefetchAround kicks off best-effort loads of t±1..±preload for any
// index neither cached nor in flight. Failures are logged, never
// propagated.
func (s *Store) prefetchAround(t int) {
	for d := 1; d <= s.preload; d++ {
		s.prefetch(t - d)
		s.prefetch(t + d)
	}
}

func (s *Store) prefetch(t int) {
	s.mu.Lock()
	if s.disposed || t < 0 || t >= s.dims.TimeSteps {
		s.mu.Unlock()
		return
	}
	if _, ok := s.cache[t]; ok {
		s.mu.Unlock()
		return
	}
	if _, ok := s.inflight[t]; ok {
		s.mu.Unlock()
		return
	}
	fl := &inflightLoad{done: make(chan struct{})}
	s.inflight[t] = fl
	s.mu.Unlock()

	go func() {
		s.load(context.Background(), t, fl)
		if fl.err != nil {
			s.logf("prefetch of slice %d failed: %v", t, fl.err)
		}
	}()
}

// GetValue returns the sample at (t, y, x) via GetSlice.
func (s *Store) GetValue(ctx context.Context, t, y, x int) (float32, error) {
	if y < 0 || y >= s.dims.Height || x < 0 || x >= s.dims.Width {
		return 0, fmt.Errorf("pixel (%d,%d) outside %dx%d grid", y, x, s.dims.Height, s.dims.Width)
	}
	buf, err := s.GetSlice(ctx, t)
	if err != nil {
		return 0, err
	}
	return buf[y*s.dims.Width+x], nil
}

// GetPixelSeries reads one pixel across the whole time axis with
// sequential GetValue calls. For wide time ranges this walks far more
// slices than the cache can hold, defeating its locality benefit; that is
// a known cost, not an error.
func (s *Store) GetPixelSeries(ctx context.Context, y, x int) ([]float32, error) {
	out := make([]float32, s.dims.TimeSteps)
	for t := 0; t < s.dims.TimeSteps; t++ {
		v, err := s.GetValue(ctx, t, y, x)
		if err != nil {
			return nil, err
		}
		out[t] = v
	}
	return out, nil
}

// PreloadRange warms the cache for [t0, t1] with best-effort background
// loads, coalescing with any in-flight work the same way GetSlice does.
func (s *Store) PreloadRange(t0, t1 int) {
	for t := t0; t <= t1; t++ {
		s.prefetch(t)
	}
}

// Stats returns a snapshot of the diagnostic counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:         s.hits,
		Misses:       s.misses,
		Evictions:    s.evictions,
		CachedSlices: len(s.cache),
		MemoryBytes:  int64(len(s.cache)) * int64(s.dims.SliceLen()) * 4,
	}
}

// Dispose releases every cached buffer, drops in-flight bookkeeping, and
// closes the loader's resource handle. Callers must dispose a store they
// no longer need; omission leaks the open handle. Any access after
// Dispose fails with ErrDisposed.
func (s *Store) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.cache = nil
	s.order = nil
	s.inflight = nil
	s.mu.Unlock()

	return s.loader.Close()
}
