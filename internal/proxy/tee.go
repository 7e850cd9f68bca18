package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dctx-team/routex/internal/metrics"
	"github.com/dctx-team/routex/internal/store"
)

// teeEvent is the (request, response) tuple fanned out to destinations.
type teeEvent struct {
	Channel    store.Channel
	Model      string
	StatusCode int
	LatencyMs  int
	Success    bool
	Request    map[string]any
	Response   map[string]any
}

const defaultTeeWorkers = 8

// teeDispatcher fans out teeEvents to enabled TeeDestinations with bounded
// concurrency. Delivery is best-effort and never affects the client
// response (spec §4.7) — grounded on the teacher's healthchecker.go
// ticker-plus-worker-pool idiom, adapted from periodic health polling to
// event-driven fan-out.
type teeDispatcher struct {
	st      *store.Store
	metrics *metrics.Registry
	log     *slog.Logger
	jobs    chan teeJob
	wg      sync.WaitGroup
}

type teeJob struct {
	dest  store.TeeDestination
	event teeEvent
}

func newTeeDispatcher(st *store.Store, m *metrics.Registry, log *slog.Logger) *teeDispatcher {
	d := &teeDispatcher{st: st, metrics: m, log: log, jobs: make(chan teeJob, 256)}
	for i := 0; i < defaultTeeWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *teeDispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.deliver(job.dest, job.event)
	}
}

// Tee enqueues event for every enabled destination whose filter matches.
// Non-blocking: a full queue drops the event rather than slowing the
// request path down, incrementing routex_tee_failed_total.
func (d *teeDispatcher) Tee(event teeEvent) {
	dests, err := d.st.ListEnabledTeeDestinations(context.Background())
	if err != nil || len(dests) == 0 {
		return
	}
	for _, dest := range dests {
		if !matchesTeeFilter(dest.Filter, event) {
			continue
		}
		select {
		case d.jobs <- teeJob{dest: dest, event: event}:
		default:
			d.log.Warn("tee: queue full, dropping event", slog.String("destination", dest.Name))
			d.metrics.IncCounter("routex_tee_failed_total", "tee deliveries that failed or were dropped", 1,
				map[string]string{"destination": dest.Name})
		}
	}
}

func matchesTeeFilter(f store.TeeFilter, e teeEvent) bool {
	if f.SuccessOnly && !e.Success {
		return false
	}
	if f.FailureOnly && e.Success {
		return false
	}
	if len(f.StatusCodes) > 0 && !containsInt(f.StatusCodes, e.StatusCode) {
		return false
	}
	if len(f.Channels) > 0 && !containsString(f.Channels, e.Channel.ID) {
		return false
	}
	if len(f.Models) > 0 && !containsString(f.Models, e.Model) {
		return false
	}
	if f.MinLatency > 0 && e.LatencyMs < f.MinLatency {
		return false
	}
	if f.MaxLatency > 0 && e.LatencyMs > f.MaxLatency {
		return false
	}
	return true
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (d *teeDispatcher) deliver(dest store.TeeDestination, event teeEvent) {
	timeout := time.Duration(dest.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	attempts := dest.Retries + 1

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err = d.deliverOnce(ctx, dest, event)
		cancel()
		if err == nil {
			return
		}
	}

	d.log.Warn("tee: delivery failed", slog.String("destination", dest.Name), slog.String("error", err.Error()))
	d.metrics.IncCounter("routex_tee_failed_total", "tee deliveries that failed or were dropped", 1,
		map[string]string{"destination": dest.Name})
}

func (d *teeDispatcher) deliverOnce(ctx context.Context, dest store.TeeDestination, event teeEvent) error {
	payload, err := json.Marshal(map[string]any{
		"channel":    event.Channel.Redacted(),
		"model":      event.Model,
		"statusCode": event.StatusCode,
		"latencyMs":  event.LatencyMs,
		"success":    event.Success,
		"request":    event.Request,
		"response":   event.Response,
	})
	if err != nil {
		return err
	}

	switch dest.Type {
	case "file":
		return deliverToFile(dest.FilePath, payload)
	case "webhook":
		return deliverToWebhook(ctx, dest, payload)
	default:
		// "custom" destinations are a documented extension point with no
		// built-in transport; nothing to deliver without one configured.
		return nil
	}
}

func deliverToFile(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(payload, '\n'))
	return err
}

func deliverToWebhook(ctx context.Context, dest store.TeeDestination, payload []byte) error {
	method := dest.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, dest.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range dest.Headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{status: resp.StatusCode}
	}
	return nil
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string {
	return "tee: webhook returned non-2xx status"
}

// Close stops accepting new jobs and waits for in-flight deliveries to
// drain, part of the engine's graceful-shutdown sequence (spec §5).
func (d *teeDispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
}
