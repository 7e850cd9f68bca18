package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the embedded-database handle for Routex. All public operations
// are safe for concurrent callers; the underlying *sql.DB serializes writes
// via a single connection, mirroring the teacher's single-serialized-handle
// discipline for its Redis client.
type Store struct {
	db     *sql.DB
	log    *slog.Logger
	mu     sync.Mutex // guards multi-statement writes needing atomicity beyond sql.Tx
	rows   *rowCache
	batch  *logBatch
}

// Options configures a Store.
type Options struct {
	Path             string
	CacheTTL         time.Duration // default 30s, spec §4.1 DEFAULT_CACHE_TTL
	BatchSize        int           // default 500, spec §4.1 REQUEST_BATCH_SIZE
	BatchHighWater   int           // default 100
	FlushInterval    time.Duration // default 1s, REQUEST_FLUSH_INTERVAL
}

func (o *Options) setDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 30 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.BatchHighWater <= 0 {
		o.BatchHighWater = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
}

// Open opens (creating if absent) the embedded SQLite database at opts.Path,
// runs pending migrations and starts the background write-batch flusher.
func Open(opts Options, log *slog.Logger) (*Store, error) {
	opts.setDefaults()
	if log == nil {
		log = slog.Default()
	}

	dsn := opts.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer, matches teacher's serialized-handle model

	s := &Store{
		db:   db,
		log:  log,
		rows: newRowCache(opts.CacheTTL),
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	s.batch = newLogBatch(s, opts.BatchSize, opts.BatchHighWater, opts.FlushInterval, log)
	return s, nil
}

// Close flushes any buffered request logs and closes the database handle.
func (s *Store) Close() error {
	s.batch.Close()
	s.rows.Close()
	return s.db.Close()
}

// Ping verifies database connectivity, used by /health/detailed.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CacheStats reports the row cache's cumulative hit/miss counters, for
// GET /api/database/cache/stats.
func (s *Store) CacheStats() (hits, misses int64) {
	return s.rows.stats()
}

func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
