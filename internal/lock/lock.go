// Package lock implements the advisory write lock guarding a snapshot
// medium's read-modify-write cycle.
//
// The lock is a file created with O_EXCL holding the owner's pid and
// acquisition time. A lock older than the staleness timeout is presumed
// orphaned (the holder crashed) and forcibly cleared by the next
// acquirer. Two processes can race that clearing, so the lock is a
// throughput optimization only; the medium's optimistic version check is
// the actual safety net against lost updates.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/logger"
)

const (
	DefaultMaxRetries = 10
	DefaultBackoff    = 25 * time.Millisecond
	DefaultStaleAfter = 30 * time.Second
)

// owner is what the lock file contains.
type owner struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// Options configures a Locker. Zero fields take the package defaults.
type Options struct {
	MaxRetries int
	Backoff    time.Duration // base for exponential backoff
	StaleAfter time.Duration
}

// Locker serializes writers on one lock scope. Goroutines within the
// process queue on an in-process mutex before touching the file, so the
// file-level retry loop only ever races other processes.
type Locker struct {
	path string
	opts Options
	log  *logger.Logger
	mu   *sync.Mutex
}

// processMutexes maps lock path to the per-scope in-process mutex.
var (
	processMutexes   = map[string]*sync.Mutex{}
	processMutexesMu sync.Mutex
)

func scopeMutex(path string) *sync.Mutex {
	processMutexesMu.Lock()
	defer processMutexesMu.Unlock()
	mu, ok := processMutexes[path]
	if !ok {
		mu = &sync.Mutex{}
		processMutexes[path] = mu
	}
	return mu
}

// New creates a Locker for the given lock file path.
func New(path string, opts Options, log *logger.Logger) *Locker {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Locker{path: path, opts: opts, log: log, mu: scopeMutex(path)}
}

// Path returns the lock file path.
func (l *Locker) Path() string { return l.path }

// Acquire blocks until the lock is held or the retry budget is spent,
// returning a release function that must be called on every exit path.
// Failure wraps errs.ErrLockTimeout. Context cancellation between
// attempts aborts early.
func (l *Locker) Acquire(ctx context.Context) (release func(), err error) {
	l.mu.Lock()
	defer func() {
		if err != nil {
			l.mu.Unlock()
		}
	}()

	for attempt := 0; attempt < l.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoffFor(l.opts.Backoff, attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, fmt.Errorf("lock %s: %w", l.path, ctx.Err())
			}
		}

		ok, tryErr := l.try()
		if tryErr != nil {
			return nil, tryErr
		}
		if ok {
			return l.release, nil
		}

		if l.clearIfStale() {
			// Lock was orphaned and cleared; retry immediately.
			attempt--
		}
	}

	return nil, fmt.Errorf("lock %s after %d attempts: %w", l.path, l.opts.MaxRetries, errs.ErrLockTimeout)
}

// maxBackoff caps the exponential backoff so a deep retry budget does
// not produce multi-minute sleeps.
const maxBackoff = 2 * time.Second

func backoffFor(base time.Duration, attempt int) time.Duration {
	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}

// try attempts a single O_EXCL creation of the lock file.
func (l *Locker) try() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, &errs.StorageError{Op: "lock create", Err: err}
	}
	defer f.Close()

	payload, err := json.Marshal(owner{PID: os.Getpid(), AcquiredAt: time.Now().UTC()})
	if err != nil {
		return false, &errs.StorageError{Op: "lock encode", Err: err}
	}
	if _, err := f.Write(payload); err != nil {
		os.Remove(l.path)
		return false, &errs.StorageError{Op: "lock write", Err: err}
	}
	return true, nil
}

// clearIfStale removes the lock file when its recorded acquisition time
// is older than the staleness timeout. Returns true if the file was
// cleared. Unreadable lock files fall back to the file mtime.
func (l *Locker) clearIfStale() bool {
	age, ok := l.holderAge()
	if !ok || age <= l.opts.StaleAfter {
		return false
	}

	l.log.Warn("clearing stale lock %s (held for %s)", l.path, age.Round(time.Millisecond))
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.log.Warn("failed to clear stale lock %s: %v", l.path, err)
		return false
	}
	return true
}

func (l *Locker) holderAge() (time.Duration, bool) {
	data, err := os.ReadFile(l.path)
	if err == nil {
		var o owner
		if json.Unmarshal(data, &o) == nil && !o.AcquiredAt.IsZero() {
			return time.Since(o.AcquiredAt), true
		}
	}
	info, err := os.Stat(l.path)
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}

// release removes the lock file and frees the in-process mutex. Safe to
// call even if the file was already cleared by a stale-lock sweep.
func (l *Locker) release() {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.log.Warn("release lock %s: %v", l.path, err)
	}
	l.mu.Unlock()
}
