package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// logBatch is the write-batch buffer for request logs described in spec
// §4.1. It mirrors the teacher's internal/logger/logger.go channel+ticker+
// batch-size+drop-on-full shape, but its flush performs a real transactional
// multi-row INSERT against the embedded database instead of an slog call.
type logBatch struct {
	store *Store
	log   *slog.Logger

	ch   chan RequestLog
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	batchSize int // buffer capacity (spec REQUEST_BATCH_SIZE, default 500)
	highWater int // synchronous-flush trigger (default 100)

	dropped atomic.Int64
}

func newLogBatch(s *Store, batchSize, highWater int, flushInterval time.Duration, log *slog.Logger) *logBatch {
	b := &logBatch{
		store:     s,
		log:       log,
		ch:        make(chan RequestLog, batchSize*4),
		done:      make(chan struct{}),
		batchSize: batchSize,
		highWater: highWater,
	}
	b.wg.Add(1)
	go b.run(flushInterval)
	return b
}

// enqueue buffers a request log entry. If the channel is full the entry is
// dropped and counted — logging must never block the request hot path.
func (b *logBatch) enqueue(entry RequestLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	select {
	case b.ch <- entry:
	default:
		b.dropped.Add(1)
	}
}

func (b *logBatch) droppedCount() int64 { return b.dropped.Load() }

func (b *logBatch) Close() {
	b.once.Do(func() { close(b.done) })
	b.wg.Wait()
}

func (b *logBatch) run(flushInterval time.Duration) {
	defer b.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	buf := make([]RequestLog, 0, b.batchSize)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		if err := b.insertAll(buf); err != nil {
			b.log.Error("store: request log flush failed", slog.String("error", err.Error()), slog.Int("entries", len(buf)))
		}
		buf = buf[:0]
	}

	for {
		select {
		case entry := <-b.ch:
			buf = append(buf, entry)
			if len(buf) >= b.highWater {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-b.done:
			for {
				select {
				case entry := <-b.ch:
					buf = append(buf, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (b *logBatch) insertAll(entries []RequestLog) error {
	tx, err := b.store.db.Begin()
	if err != nil {
		return wrapStorage(err)
	}
	stmt, err := tx.Prepare(`INSERT INTO requests
		(id, channel_id, model, method, path, status_code, latency_ms,
		 input_tokens, output_tokens, cached_tokens, success, error, timestamp, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return wrapStorage(err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(
			e.ID, e.ChannelID, e.Model, e.Method, e.Path, e.StatusCode, e.LatencyMs,
			e.InputTokens, e.OutputTokens, e.CachedTokens, boolToInt(e.Success), e.Error,
			e.Timestamp.UnixMilli(), e.TraceID,
		); err != nil {
			tx.Rollback()
			return wrapStorage(err)
		}
	}
	return wrapStorage(tx.Commit())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// LogRequest enqueues entry into the write buffer (spec §4.1 logRequest).
func (s *Store) LogRequest(_ context.Context, entry RequestLog) {
	s.batch.enqueue(entry)
}

// DroppedLogCount reports how many request-log entries were dropped because
// the write buffer was full.
func (s *Store) DroppedLogCount() int64 {
	return s.batch.droppedCount()
}
