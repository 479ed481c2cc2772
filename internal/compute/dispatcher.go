package compute

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/selene-data/illumination.report/internal/monitoring"
)

// ErrClosed is returned for submissions after Close, and rejects every
// request still pending when Close tears the compute context down.
var ErrClosed = errors.New("compute dispatcher closed")

// Dispatcher correlates compute tasks with their results by a
// monotonically increasing id. The isolated context (one worker, tasks
// executed sequentially) starts lazily on the first submission and is torn
// down explicitly by Close. The pending-request table is mutated only
// here, on submit and on resolve/reject.
type Dispatcher struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan response
	started bool
	closed  bool

	tasks   chan []byte
	replies chan []byte
	stop    chan struct{}

	logf func(format string, v ...interface{})
}

// NewDispatcher creates an idle dispatcher. No goroutines run until the
// first Submit.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		pending: make(map[uint64]chan response),
		logf:    monitoring.Component("Dispatcher"),
	}
}

// start brings up the isolated context. Caller holds d.mu.
func (d *Dispatcher) start() {
	d.tasks = make(chan []byte)
	d.replies = make(chan []byte)
	d.stop = make(chan struct{})
	d.started = true

	go workerLoop(d.tasks, d.replies, d.stop)
	go d.receiveLoop()
	d.logf("compute context started")
}

// receiveLoop decodes reply frames and resolves the matching pending
// entry. An unmatched id means the caller already abandoned the request;
// the reply is dropped.
func (d *Dispatcher) receiveLoop() {
	for {
		select {
		case <-d.stop:
			return
		case raw := <-d.replies:
			var resp response
			if err := decodeFrame(raw, &resp); err != nil {
				d.logf("dropping undecodable reply: %v", err)
				continue
			}

			d.mu.Lock()
			ch, ok := d.pending[resp.ID]
			if ok {
				delete(d.pending, resp.ID)
			}
			d.mu.Unlock()

			if ok {
				ch <- resp
			} else {
				d.logf("dropping reply for unknown task %d", resp.ID)
			}
		}
	}
}

// Submit serialises a task across the boundary and blocks until the
// isolated context replies with a result or an error for its id. Tasks
// submitted while one is running queue and execute sequentially. There is
// no cancellation of in-flight work: a caller whose ctx expires abandons
// its pending entry, which the receive loop then discards on arrival.
func (d *Dispatcher) Submit(ctx context.Context, task Task) (*Result, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	if !d.started {
		d.start()
	}
	d.nextID++
	id := d.nextID
	ch := make(chan response, 1)
	d.pending[id] = ch
	d.mu.Unlock()

	frame, err := encodeFrame(request{ID: id, Task: task})
	if err != nil {
		d.reject(id)
		return nil, err
	}

	select {
	case d.tasks <- frame:
	case <-d.stop:
		d.reject(id)
		return nil, ErrClosed
	case <-ctx.Done():
		d.reject(id)
		return nil, ctx.Err()
	}

	select {
	case resp := <-ch:
		if resp.Err == ErrClosed.Error() {
			return nil, ErrClosed
		}
		if resp.Err != "" {
			return nil, fmt.Errorf("compute task %d: %s", id, resp.Err)
		}
		return resp.Result, nil
	case <-ctx.Done():
		// The task itself cannot be aborted; only this caller stops
		// waiting. Drop the pending entry here so the table does not
		// grow with abandoned requests.
		d.reject(id)
		return nil, ctx.Err()
	}
}

// reject drops a pending entry without resolving it.
func (d *Dispatcher) reject(id uint64) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

// Close tears the compute context down. Every request still pending is
// rejected with ErrClosed; their callers unblock immediately. Close is
// idempotent, and a closed dispatcher refuses further submissions.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.started {
		close(d.stop)
	}
	rejected := 0
	for id, ch := range d.pending {
		ch <- response{ID: id, Err: ErrClosed.Error()}
		delete(d.pending, id)
		rejected++
	}
	d.mu.Unlock()

	if rejected > 0 {
		d.logf("rejected %d pending request(s) on close", rejected)
	}
	if d.started {
		d.logf("compute context stopped")
	}
}
