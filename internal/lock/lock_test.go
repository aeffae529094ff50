package lock

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapdoc/snapdoc/internal/errs"
)

func newTestLocker(t *testing.T, opts Options) *Locker {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "db.lock"), opts, nil)
}

func TestAcquireRelease(t *testing.T) {
	l := newTestLocker(t, Options{})

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(l.Path())
	require.NoError(t, err, "lock file should exist while held")

	release()

	_, err = os.Stat(l.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist), "lock file should be gone after release")
}

func TestLockFileContainsOwner(t *testing.T) {
	l := newTestLocker(t, Options{})

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	var o struct {
		PID        int       `json:"pid"`
		AcquiredAt time.Time `json:"acquiredAt"`
	}
	require.NoError(t, json.Unmarshal(data, &o))
	assert.Equal(t, os.Getpid(), o.PID)
	assert.False(t, o.AcquiredAt.IsZero())
}

func TestGoroutinesSerialize(t *testing.T) {
	l := newTestLocker(t, Options{MaxRetries: 50, Backoff: time.Millisecond})

	var holders int
	var maxHolders int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxHolders {
				maxHolders = holders
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxHolders, "at most one goroutine may hold the lock")
}

func TestStaleLockCleared(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.lock")

	// Simulate a crashed holder: lock file recorded far in the past.
	stale, err := json.Marshal(map[string]any{
		"pid":        99999,
		"acquiredAt": time.Now().Add(-time.Hour).UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, stale, 0o644))

	l := New(path, Options{MaxRetries: 3, Backoff: time.Millisecond, StaleAfter: time.Second}, nil)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err, "stale lock should be cleared and reacquired")
	release()
}

func TestAcquireTimesOutOnForeignLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.lock")

	// A fresh foreign lock that never goes stale within the test.
	fresh, err := json.Marshal(map[string]any{
		"pid":        99999,
		"acquiredAt": time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, fresh, 0o644))

	l := New(path, Options{MaxRetries: 3, Backoff: time.Millisecond, StaleAfter: time.Hour}, nil)

	_, err = l.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrLockTimeout))
}

func TestAcquireHonorsContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.lock")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	l := New(path, Options{MaxRetries: 100, Backoff: 10 * time.Millisecond, StaleAfter: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := l.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}
