// Package history reconstructs the past from a versioned medium's
// snapshot log. There are no per-record deltas in storage, only whole
// snapshots, so every question about the past is answered by reading
// historical snapshots and diffing them in memory.
package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/snapdoc/snapdoc/internal/engine"
	"github.com/snapdoc/snapdoc/internal/logger"
	"github.com/snapdoc/snapdoc/internal/medium"
	"github.com/snapdoc/snapdoc/internal/value"
)

// DefaultWorkers bounds concurrent snapshot materialization.
const DefaultWorkers = 4

// Engine answers history questions for one transaction engine whose
// medium keeps a version log.
type Engine struct {
	txn     *engine.Engine
	store   medium.Versioned
	log     *logger.Logger
	workers int
}

// New wires a history engine over txn. Fails when the underlying
// medium keeps no version log (the plain file medium).
func New(txn *engine.Engine, workers int, log *logger.Logger) (*Engine, error) {
	store, ok := txn.Medium().(medium.Versioned)
	if !ok {
		return nil, fmt.Errorf("history: medium %T keeps no version log", txn.Medium())
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{txn: txn, store: store, log: log, workers: workers}, nil
}

// ListVersions returns version metadata newest first.
func (e *Engine) ListVersions(ctx context.Context, limit int) ([]medium.VersionRecord, error) {
	return e.store.ListVersions(ctx, limit)
}

// SnapshotAt materializes the full database as it was at token.
func (e *Engine) SnapshotAt(ctx context.Context, token string) (value.Database, error) {
	blob, err := e.store.ReadAtVersion(ctx, token)
	if err != nil {
		return nil, err
	}
	return e.materialize(blob)
}

func (e *Engine) materialize(blob []byte) (value.Database, error) {
	if len(blob) == 0 {
		return value.Database{}, nil
	}
	plain, err := e.txn.Sealer().Unwrap(blob)
	if err != nil {
		return nil, err
	}
	return e.txn.Codec().Parse(plain)
}

// snapshotStates loads the snapshots for versions concurrently through
// a bounded worker pool, keeping result order aligned with versions.
// A version whose blob cannot be read or decoded yields a nil database
// and is logged, not fatal: one corrupt version must not hide the rest
// of the log.
func (e *Engine) snapshotStates(ctx context.Context, versions []medium.VersionRecord) ([]value.Database, error) {
	pool, err := ants.NewPool(e.workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	states := make([]value.Database, len(versions))
	var wg sync.WaitGroup
	for i, v := range versions {
		wg.Add(1)
		i, v := i, v
		err := pool.Submit(func() {
			defer wg.Done()
			blob, err := e.store.ReadAtVersion(ctx, v.Token)
			if err != nil {
				e.log.Warn("skipping version %s: %v", v.Token, err)
				return
			}
			db, err := e.materialize(blob)
			if err != nil {
				e.log.Warn("skipping undecodable version %s: %v", v.Token, err)
				return
			}
			states[i] = db
		})
		if err != nil {
			wg.Done()
			return nil, err
		}
	}
	wg.Wait()
	return states, nil
}

// Revert writes the exact blob stored at token as a brand new current
// version. History is append-only: reverting never rewrites the log,
// and reverting twice to the same token produces byte-identical
// snapshots under fresh tokens.
func (e *Engine) Revert(ctx context.Context, token, message string) (string, error) {
	blob, err := e.store.ReadAtVersion(ctx, token)
	if err != nil {
		return "", err
	}
	if message == "" {
		message = "revert to " + shortToken(token)
	}
	return e.txn.RestoreBlob(ctx, blob, message)
}

// Diff compares two versions in the log.
func (e *Engine) Diff(ctx context.Context, tokenA, tokenB string) (medium.Comparison, error) {
	return e.store.CompareVersions(ctx, tokenA, tokenB)
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
