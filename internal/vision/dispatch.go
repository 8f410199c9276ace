package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/kerbside-data/sentinel.report/internal/httputil"
)

// Sink receives finalized violation events. Implementations must be safe
// for use from the single dispatcher goroutine and should not retain the
// event after Deliver returns.
type Sink interface {
	Deliver(ctx context.Context, ev *ViolationEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev *ViolationEvent) error

func (f SinkFunc) Deliver(ctx context.Context, ev *ViolationEvent) error {
	return f(ctx, ev)
}

// HTTPSink delivers events to an alert ingestion endpoint as JSON POSTs.
type HTTPSink struct {
	client httputil.HTTPClient
	url    string
}

// NewHTTPSink posts events to {baseURL}/api/alerts using the given client.
func NewHTTPSink(client httputil.HTTPClient, baseURL string) *HTTPSink {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &HTTPSink{client: client, url: baseURL + "/api/alerts"}
}

// Deliver posts one event. Non-2xx responses are errors; the dispatcher
// logs them and moves on.
func (s *HTTPSink) Deliver(ctx context.Context, ev *ViolationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting alert: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher drains the violation manager's queue in the background. Per
// event it attempts evidence capture, then delivery; both are best-effort
// and a failure in either never stops the drain loop.
type Dispatcher struct {
	manager  *ViolationManager
	capturer *SnapshotCapturer
	sink     Sink

	mu        sync.Mutex
	delivered int64
	failed    int64
	captures  int64
}

// DispatcherStats is a point-in-time snapshot of dispatch counters.
type DispatcherStats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Captures  int64 `json:"captures"`
}

// NewDispatcher wires the drain loop to a manager's queue. The capturer
// may be nil to skip evidence entirely.
func NewDispatcher(manager *ViolationManager, capturer *SnapshotCapturer, sink Sink) *Dispatcher {
	return &Dispatcher{manager: manager, capturer: capturer, sink: sink}
}

// Run drains the queue until the manager closes it. Intended to run on its
// own goroutine; ctx bounds individual deliveries, not the drain itself, so
// events already queued at shutdown still get a delivery attempt.
func (d *Dispatcher) Run(ctx context.Context) {
	opsf("dispatcher started")
	for pe := range d.manager.queue {
		ev := pe.event
		if d.capturer != nil {
			path, err := d.capturer.Capture(pe.frame, pe.bbox, ev.Type, ev.ObjectID, ev.CreatedAt)
			switch {
			case errors.Is(err, ErrNoFrameImage):
				tracef("no frame image for %s alert on object %d", ev.Type, ev.ObjectID)
			case err != nil:
				opsf("snapshot capture failed for object %d: %v", ev.ObjectID, err)
			default:
				ev.SnapshotPath = path
				d.mu.Lock()
				d.captures++
				d.mu.Unlock()
			}
		}

		if err := d.sink.Deliver(ctx, &ev); err != nil {
			d.mu.Lock()
			d.failed++
			d.mu.Unlock()
			opsf("alert delivery failed for object %d: %v", ev.ObjectID, err)
			continue
		}
		d.mu.Lock()
		d.delivered++
		d.mu.Unlock()
		diagf("delivered %s alert for object %d", ev.Type, ev.ObjectID)
	}
	opsf("dispatcher stopped")
}

// Stats returns a snapshot of dispatch counters.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DispatcherStats{Delivered: d.delivered, Failed: d.failed, Captures: d.captures}
}
