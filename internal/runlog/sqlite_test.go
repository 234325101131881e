package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := NewBuilder("lunch at chipotle for 12.30")
	b.Add(EntryPrompt, "Focused prompt for Merchant", "prompt body", "merchant")
	b.Add(EntryValidation, "Validation passed", "confidence=0.85", "merchant")
	saved := b.Snapshot()

	require.NoError(t, store.Save(ctx, saved))

	got, err := store.Get(ctx, saved.RunID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, saved.RunID, got.RunID)
	require.Len(t, got.Entries, 3)
	assert.Equal(t, EntryInput, got.Entries[0].Type)
	assert.Equal(t, "lunch at chipotle for 12.30", got.Entries[0].Detail)
	assert.Equal(t, EntryPrompt, got.Entries[1].Type)
	assert.Equal(t, "merchant", got.Entries[1].Field)
	assert.Equal(t, EntryValidation, got.Entries[2].Type)
}

func TestSQLiteStoreSaveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	log := NewBuilder("input").Snapshot()
	require.NoError(t, store.Save(ctx, log))
	require.NoError(t, store.Save(ctx, log))

	got, err := store.Get(ctx, log.RunID)
	require.NoError(t, err)
	assert.Len(t, got.Entries, 1)
}

func TestSQLiteStoreSaveRequiresRunID(t *testing.T) {
	store := newTestStore(t)
	err := store.Save(context.Background(), Log{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run ID is required")
}

func TestSQLiteStoreGetMissingRun(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLiteStoreListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := Log{
		RunID:     "run-older",
		CreatedAt: time.Now().Add(-time.Hour),
		Entries:   []Entry{{Timestamp: time.Now().Add(-time.Hour), Type: EntryInput, Title: "Captured input", Detail: "first"}},
	}
	newer := Log{
		RunID:     "run-newer",
		CreatedAt: time.Now(),
		Entries:   []Entry{{Timestamp: time.Now(), Type: EntryInput, Title: "Captured input", Detail: "second"}},
	}
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	logs, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "run-newer", logs[0].RunID)
	assert.Equal(t, "run-older", logs[1].RunID)

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-newer", limited[0].RunID)
}
