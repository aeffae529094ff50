package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapdoc/snapdoc/internal/codec"
	"github.com/snapdoc/snapdoc/internal/engine"
	"github.com/snapdoc/snapdoc/internal/lock"
	"github.com/snapdoc/snapdoc/internal/logger"
	"github.com/snapdoc/snapdoc/internal/medium"
	"github.com/snapdoc/snapdoc/internal/value"
)

func newTestEngines(t *testing.T) (*engine.Engine, *Engine) {
	t.Helper()
	dir := t.TempDir()
	store, err := medium.OpenSQLite(filepath.Join(dir, "store.db"))
	require.NoError(t, err)

	txn, err := engine.New(engine.Options{
		Medium: store,
		Codec:  codec.JSON{},
		Locker: lock.New(filepath.Join(dir, "store.lock"), lock.Options{}, logger.Discard()),
		Log:    logger.Discard(),
		Author: medium.Author{Name: "test", Email: "test@example.com"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = txn.Close() })

	hist, err := New(txn, 2, logger.Discard())
	require.NoError(t, err)
	return txn, hist
}

func TestHistoryNeedsVersionedMedium(t *testing.T) {
	dir := t.TempDir()
	txn, err := engine.New(engine.Options{
		Medium: medium.NewFile(filepath.Join(dir, "store.json"), logger.Discard()),
		Codec:  codec.JSON{},
		Locker: lock.New(filepath.Join(dir, "store.lock"), lock.Options{}, logger.Discard()),
	})
	require.NoError(t, err)
	defer txn.Close()

	_, err = New(txn, 2, nil)
	assert.Error(t, err)
}

func TestRecordHistoryLifecycle(t *testing.T) {
	txn, hist := newTestEngines(t)
	ctx := context.Background()

	// S1: unrelated write, record does not exist yet.
	_, err := txn.Create(ctx, "tags", value.Object{"id": value.String("t1")})
	require.NoError(t, err)
	// S2: born.
	_, err = txn.Create(ctx, "users", value.Object{"id": value.String("u1"), "age": value.Number(30)})
	require.NoError(t, err)
	// S3: changed.
	_, err = txn.Update(ctx, "users", "u1", value.Object{"age": value.Number(31)})
	require.NoError(t, err)
	// S4: unrelated write, record untouched.
	_, err = txn.Create(ctx, "tags", value.Object{"id": value.String("t2")})
	require.NoError(t, err)
	// S5: gone.
	_, err = txn.Delete(ctx, "users", "u1")
	require.NoError(t, err)

	entries, err := hist.RecordHistory(ctx, "users", "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, Created, entries[0].Kind)
	assert.Equal(t, value.Number(30), entries[0].Record["age"])
	assert.Equal(t, Updated, entries[1].Kind)
	assert.Equal(t, value.Number(31), entries[1].Record["age"])
	assert.Equal(t, Unchanged, entries[2].Kind)
	assert.Equal(t, Deleted, entries[3].Kind)
	assert.Nil(t, entries[3].Record)

	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Version.Timestamp.Before(entries[i-1].Version.Timestamp),
			"entries must be chronological")
	}
}

func TestRecordHistoryMissingRecord(t *testing.T) {
	txn, hist := newTestEngines(t)
	ctx := context.Background()

	_, err := txn.Create(ctx, "users", value.Object{"id": value.String("u1")})
	require.NoError(t, err)

	entries, err := hist.RecordHistory(ctx, "users", "ghost", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFieldHistory(t *testing.T) {
	txn, hist := newTestEngines(t)
	ctx := context.Background()

	_, err := txn.Create(ctx, "users", value.Object{"id": value.String("u1"), "age": value.Number(30)})
	require.NoError(t, err)
	_, err = txn.Update(ctx, "users", "u1", value.Object{"name": value.String("Ada")})
	require.NoError(t, err)
	_, err = txn.Update(ctx, "users", "u1", value.Object{"age": value.Number(31)})
	require.NoError(t, err)

	changes, err := hist.FieldHistory(ctx, "users", "u1", "age", 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Nil(t, changes[0].Old)
	assert.Equal(t, value.Number(30), changes[0].New)
	assert.Equal(t, value.Number(30), changes[1].Old)
	assert.Equal(t, value.Number(31), changes[1].New)
}

func TestCorruptVersionIsSkipped(t *testing.T) {
	txn, hist := newTestEngines(t)
	ctx := context.Background()

	_, err := txn.Create(ctx, "users", value.Object{"id": value.String("u1"), "age": value.Number(30)})
	require.NoError(t, err)
	goodBlob, head, err := txn.Medium().ReadCurrent(ctx)
	require.NoError(t, err)

	// A version whose blob no codec can parse, written straight through
	// the medium.
	_, err = txn.Medium().WriteNew(ctx, []byte("{not json"), "garbage",
		medium.Author{Name: "test"}, head)
	require.NoError(t, err)

	_, err = txn.RestoreBlob(ctx, goodBlob, "recover")
	require.NoError(t, err)
	_, err = txn.Update(ctx, "users", "u1", value.Object{"age": value.Number(31)})
	require.NoError(t, err)

	entries, err := hist.RecordHistory(ctx, "users", "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, Created, entries[0].Kind)
	assert.Equal(t, Unchanged, entries[1].Kind)
	assert.Equal(t, Updated, entries[2].Kind)
	for _, entry := range entries {
		assert.NotEqual(t, "garbage", entry.Version.Message)
	}

	timeline, err := hist.CollectionTimeline(ctx, "users", 0)
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	for _, point := range timeline {
		assert.NotEqual(t, "garbage", point.Version.Message)
	}

	changes, err := hist.FieldHistory(ctx, "users", "u1", "age", 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, value.Number(31), changes[1].New)
}

func TestSnapshotAt(t *testing.T) {
	txn, hist := newTestEngines(t)
	ctx := context.Background()

	_, err := txn.Create(ctx, "users", value.Object{"id": value.String("u1"), "age": value.Number(30)})
	require.NoError(t, err)
	versions, err := hist.ListVersions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	token := versions[0].Token

	_, err = txn.Update(ctx, "users", "u1", value.Object{"age": value.Number(99)})
	require.NoError(t, err)

	db, err := hist.SnapshotAt(ctx, token)
	require.NoError(t, err)
	rec, _, ok := db.FindRecord("users", "u1")
	require.True(t, ok)
	assert.Equal(t, value.Number(30), rec["age"])
}

func TestRevertRestoresExactBytes(t *testing.T) {
	txn, hist := newTestEngines(t)
	ctx := context.Background()

	_, err := txn.Create(ctx, "users", value.Object{"id": value.String("u1"), "age": value.Number(30)})
	require.NoError(t, err)
	versions, err := hist.ListVersions(ctx, 1)
	require.NoError(t, err)
	target := versions[0].Token
	wantBlob, err := txn.Medium().(medium.Versioned).ReadAtVersion(ctx, target)
	require.NoError(t, err)

	_, err = txn.Delete(ctx, "users", "u1")
	require.NoError(t, err)

	newToken, err := hist.Revert(ctx, target, "")
	require.NoError(t, err)
	assert.NotEqual(t, target, newToken, "revert appends, never rewrites")

	gotBlob, cur, err := txn.Medium().ReadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, newToken, cur)
	assert.Equal(t, wantBlob, gotBlob)

	rec, err := txn.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, value.Number(30), rec["age"])

	// Reverting again to the same target yields the same bytes under
	// yet another token.
	again, err := hist.Revert(ctx, target, "")
	require.NoError(t, err)
	assert.NotEqual(t, newToken, again)
	blob2, _, err := txn.Medium().ReadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantBlob, blob2)
}

func TestSearchVersions(t *testing.T) {
	txn, hist := newTestEngines(t)
	ctx := context.Background()

	_, err := txn.Create(ctx, "users", value.Object{"id": value.String("u1")},
		engine.WithMessage("Add First User"))
	require.NoError(t, err)
	_, err = txn.Create(ctx, "users", value.Object{"id": value.String("u2")},
		engine.WithMessage("add second user"))
	require.NoError(t, err)
	_, err = txn.Delete(ctx, "users", "u1", engine.WithMessage("cleanup"))
	require.NoError(t, err)

	byMsg, err := hist.SearchVersions(ctx, SearchFilter{MessageContains: "ADD"})
	require.NoError(t, err)
	assert.Len(t, byMsg, 2, "message match ignores case")

	byAuthor, err := hist.SearchVersions(ctx, SearchFilter{Author: "test@example.com"})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 3)

	none, err := hist.SearchVersions(ctx, SearchFilter{Author: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, none)

	future, err := hist.SearchVersions(ctx, SearchFilter{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)
}

func TestStats(t *testing.T) {
	txn, hist := newTestEngines(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := txn.Create(ctx, "users", value.Object{"id": value.String(id)})
		require.NoError(t, err)
	}

	stats, err := hist.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalVersions)
	assert.Equal(t, 3, stats.Authors["test"])
	assert.False(t, stats.Last.Before(stats.First))
	assert.Equal(t, 3.0, stats.AveragePerDay, "a span under a day counts as one day")
}

func TestCollectionTimeline(t *testing.T) {
	txn, hist := newTestEngines(t)
	ctx := context.Background()

	_, err := txn.Create(ctx, "users", value.Object{"id": value.String("u1")})
	require.NoError(t, err)
	_, err = txn.Create(ctx, "users", value.Object{"id": value.String("u2")})
	require.NoError(t, err)
	_, err = txn.Delete(ctx, "users", "u1")
	require.NoError(t, err)

	timeline, err := hist.CollectionTimeline(ctx, "users", 0)
	require.NoError(t, err)
	require.Len(t, timeline, 3)

	assert.Equal(t, 1, timeline[0].Count)
	assert.Equal(t, 1, timeline[0].Delta)
	assert.Equal(t, 2, timeline[1].Count)
	assert.Equal(t, 1, timeline[1].Delta)
	assert.Equal(t, 1, timeline[2].Count)
	assert.Equal(t, -1, timeline[2].Delta)
}

func TestDiff(t *testing.T) {
	txn, hist := newTestEngines(t)
	ctx := context.Background()

	_, err := txn.Create(ctx, "users", value.Object{"id": value.String("u1")})
	require.NoError(t, err)
	_, err = txn.Create(ctx, "users", value.Object{"id": value.String("u2")})
	require.NoError(t, err)

	versions, err := hist.ListVersions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	cmp, err := hist.Diff(ctx, versions[1].Token, versions[0].Token)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp.AheadBy)
	assert.Equal(t, 0, cmp.BehindBy)
	require.Len(t, cmp.Files, 1)
	assert.Equal(t, "modified", cmp.Files[0].Status)
}
