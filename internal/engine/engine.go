// Package engine implements the transaction engine: every mutation runs
// an acquire-lock, read-current-snapshot, mutate-in-memory, validate,
// serialize, write-with-expected-version, release-lock cycle against the
// configured snapshot medium. Reads never lock; they observe whichever
// snapshot is current, optionally through a TTL cache invalidated by
// collection on write.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/snapdoc/snapdoc/internal/cache"
	"github.com/snapdoc/snapdoc/internal/codec"
	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/lock"
	"github.com/snapdoc/snapdoc/internal/logger"
	"github.com/snapdoc/snapdoc/internal/medium"
	"github.com/snapdoc/snapdoc/internal/query"
	"github.com/snapdoc/snapdoc/internal/schema"
	"github.com/snapdoc/snapdoc/internal/seal"
	"github.com/snapdoc/snapdoc/internal/value"
)

// DefaultConflictRetries bounds automatic re-read-and-retry after an
// optimistic write rejection.
const DefaultConflictRetries = 3

// Options configures an Engine. Medium, Codec, and Locker are required.
type Options struct {
	Medium medium.Medium
	Codec  codec.Codec
	Locker *lock.Locker

	// Sealer is optional; nil means unencrypted snapshots.
	Sealer *seal.Sealer

	// Validator is optional; nil disables schema validation.
	Validator *schema.Validator

	Log *logger.Logger

	// Author is recorded on every version written to a versioned medium.
	Author medium.Author

	// ConflictRetries is the retry budget after ErrVersionConflict.
	// Zero takes the default; negative disables retries.
	ConflictRetries int

	// CacheTTL enables the read cache when positive.
	CacheTTL  time.Duration
	CacheSize int

	// BackupDir, when set, receives a copy of the previous snapshot blob
	// before each write. Backup failures are logged, never fatal.
	BackupDir string
}

// Engine orchestrates all writes and cached reads for one medium.
type Engine struct {
	medium    medium.Medium
	codec     codec.Codec
	sealer    *seal.Sealer
	locker    *lock.Locker
	validator *schema.Validator
	log       *logger.Logger
	cache     *cache.Cache
	author    medium.Author
	retries   int
	backupDir string
	stopWatch func()
}

// New initializes the medium and assembles the engine. When the medium
// is watchable and the cache is enabled, an external change to the
// backing storage flushes the whole cache.
func New(opts Options) (*Engine, error) {
	if opts.Medium == nil {
		return nil, fmt.Errorf("engine: medium is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("engine: codec is required")
	}
	if opts.Locker == nil {
		return nil, fmt.Errorf("engine: locker is required")
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	if opts.Sealer == nil {
		s, err := seal.New("")
		if err != nil {
			return nil, err
		}
		opts.Sealer = s
	}
	retries := opts.ConflictRetries
	if retries == 0 {
		retries = DefaultConflictRetries
	}
	if retries < 0 {
		retries = 0
	}

	if err := opts.Medium.Init(); err != nil {
		return nil, err
	}

	e := &Engine{
		medium:    opts.Medium,
		codec:     opts.Codec,
		sealer:    opts.Sealer,
		locker:    opts.Locker,
		validator: opts.Validator,
		log:       opts.Log,
		cache:     cache.New(opts.CacheSize, opts.CacheTTL),
		author:    opts.Author,
		retries:   retries,
		backupDir: opts.BackupDir,
	}

	if watchable, ok := opts.Medium.(medium.Watchable); ok && e.cache.Enabled() {
		stop, err := watchable.Watch(func() {
			e.log.Debug("external snapshot change, flushing cache")
			e.cache.InvalidateAll()
		})
		if err != nil {
			e.log.Warn("snapshot watcher unavailable: %v", err)
		} else {
			e.stopWatch = stop
		}
	}

	return e, nil
}

// Close stops the watcher and closes the medium.
func (e *Engine) Close() error {
	if e.stopWatch != nil {
		e.stopWatch()
		e.stopWatch = nil
	}
	return e.medium.Close()
}

// Medium exposes the underlying medium (the history engine reuses it).
func (e *Engine) Medium() medium.Medium { return e.medium }

// Codec exposes the configured codec.
func (e *Engine) Codec() codec.Codec { return e.codec }

// Sealer exposes the configured seal layer.
func (e *Engine) Sealer() *seal.Sealer { return e.sealer }

// load materializes the current database and its version token.
func (e *Engine) load(ctx context.Context) (value.Database, string, error) {
	blob, token, err := e.medium.ReadCurrent(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(blob) == 0 {
		return value.Database{}, token, nil
	}

	plain, err := e.sealer.Unwrap(blob)
	if err != nil {
		return nil, "", err
	}
	db, err := e.codec.Parse(plain)
	if err != nil {
		return nil, "", err
	}
	return db, token, nil
}

// Snapshot returns the full current database. Never cached: callers that
// want cheap repeated access use Collection.
func (e *Engine) Snapshot(ctx context.Context) (value.Database, error) {
	db, _, err := e.load(ctx)
	return db, err
}

// Collection returns the records of one collection. Results may be
// served from the TTL cache and must be treated as read-only. A missing
// collection yields an empty slice, not an error: reads are total.
func (e *Engine) Collection(ctx context.Context, name string) ([]value.Record, error) {
	key := cache.Key(name, value.Fingerprint(name, "all"))
	if records, ok := e.cache.Get(key); ok {
		return records, nil
	}

	db, _, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	records := db[name]
	if records == nil {
		records = []value.Record{}
	}
	e.cache.Set(key, records)
	return records, nil
}

// Query evaluates a declarative query against one collection. Results
// are cached under the query's fingerprint, scoped to the collection so
// a write to it drops them along with the whole-collection entry.
// Cached results must be treated as read-only.
func (e *Engine) Query(ctx context.Context, collection string, q query.Query) ([]value.Record, error) {
	key := cache.Key(collection, q.Fingerprint())
	if records, ok := e.cache.Get(key); ok {
		return records, nil
	}

	records, err := e.Collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	out, err := query.Select(records, q)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, out)
	return out, nil
}

// Get returns one record by id.
func (e *Engine) Get(ctx context.Context, collection, id string) (value.Record, error) {
	records, err := e.Collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID() == id {
			return rec, nil
		}
	}
	return nil, errs.NotFoundf("record %s/%s", collection, id)
}

// writeBackup copies the previous snapshot blob aside. Failures are
// logged and never fail the triggering write.
func (e *Engine) writeBackup(prev []byte) {
	if e.backupDir == "" || len(prev) == 0 {
		return
	}
	if err := os.MkdirAll(e.backupDir, 0o755); err != nil {
		e.log.Warn("backup dir: %v", err)
		return
	}
	name := fmt.Sprintf("snapshot-%s.bak", time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.WriteFile(filepath.Join(e.backupDir, name), prev, 0o644); err != nil {
		e.log.Warn("backup write: %v", err)
	}
}
