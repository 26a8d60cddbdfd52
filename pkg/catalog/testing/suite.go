// Package testing holds the conformance suite every catalog.Store
// implementation runs in its own tests.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfsusage/pkg/catalog"
)

// StoreTestSuite runs the catalog tests against stores built by NewStore.
type StoreTestSuite struct {
	// NewStore returns a fresh, empty store for each test.
	NewStore func(t *testing.T) catalog.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Runs", suite.RunRunTests)
	t.Run("Entries", suite.RunEntryTests)
	t.Run("Closed", suite.testClosed)
}

func sampleRecords() []catalog.Record {
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []catalog.Record{
		{Path: "/a.txt", Type: "file", Size: 100, Used: 4096, Mode: 0o100644, Mtime: mtime},
		{Path: "/docs", Type: "dir", Mode: 0o40755, Mtime: mtime},
		{Path: "/docs/readme.md", Type: "file", Size: 10, Used: 4096, Mtime: mtime},
		{Path: "/docs2", Type: "dir", Mtime: mtime},
		{Path: "/docs2/x", Type: "file", Size: 1, Mtime: mtime},
		{Path: "/données/été.txt", Type: "file", Size: 3, Mtime: mtime},
	}
}

func paths(records []catalog.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Path)
	}
	return out
}

// ============================================================================
// Run Tests
// ============================================================================

// RunRunTests covers the run lifecycle.
func (suite *StoreTestSuite) RunRunTests(test *testing.T) {
	ctx := context.Background()

	test.Run("BeginAndGet", func(t *testing.T) {
		store := suite.NewStore(t)

		run, err := store.BeginRun(ctx, "nfs://srv/export", "/")
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.False(t, run.Done())
		assert.False(t, run.Started.IsZero())

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, "nfs://srv/export", got.URL)
		assert.Equal(t, "/", got.Root)
		assert.True(t, run.Started.Equal(got.Started))
	})

	test.Run("UniqueIDs", func(t *testing.T) {
		store := suite.NewStore(t)
		a, err := store.BeginRun(ctx, "nfs://srv/export", "/")
		require.NoError(t, err)
		b, err := store.BeginRun(ctx, "nfs://srv/export", "/")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	test.Run("Finish", func(t *testing.T) {
		store := suite.NewStore(t)
		run, err := store.BeginRun(ctx, "nfs://srv/export", "/")
		require.NoError(t, err)

		totals := catalog.Totals{Dirs: 2, Files: 3, Bytes: 111, Errors: 1}
		done, err := store.FinishRun(ctx, run.ID, totals)
		require.NoError(t, err)
		assert.True(t, done.Done())
		assert.Equal(t, totals, done.Totals)

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.True(t, got.Done())
		assert.Equal(t, totals, got.Totals)

		_, err = store.FinishRun(ctx, run.ID, totals)
		assert.ErrorIs(t, err, catalog.ErrRunFinished)
	})

	test.Run("UnknownRun", func(t *testing.T) {
		store := suite.NewStore(t)

		_, err := store.GetRun(ctx, "nope")
		assert.ErrorIs(t, err, catalog.ErrRunNotFound)
		_, err = store.FinishRun(ctx, "nope", catalog.Totals{})
		assert.ErrorIs(t, err, catalog.ErrRunNotFound)
		err = store.PutEntries(ctx, "nope", sampleRecords())
		assert.ErrorIs(t, err, catalog.ErrRunNotFound)
		_, err = store.ListEntries(ctx, "nope", "/")
		assert.ErrorIs(t, err, catalog.ErrRunNotFound)
	})

	test.Run("ListRunsNewestFirst", func(t *testing.T) {
		store := suite.NewStore(t)

		var ids []string
		for range 3 {
			run, err := store.BeginRun(ctx, "nfs://srv/export", "/")
			require.NoError(t, err)
			ids = append(ids, run.ID)
			time.Sleep(2 * time.Millisecond)
		}

		runs, err := store.ListRuns(ctx)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	})

	test.Run("CancelledContext", func(t *testing.T) {
		store := suite.NewStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.BeginRun(cctx, "nfs://srv/export", "/")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// ============================================================================
// Entry Tests
// ============================================================================

// RunEntryTests covers storing and querying entries.
func (suite *StoreTestSuite) RunEntryTests(test *testing.T) {
	ctx := context.Background()

	newRun := func(t *testing.T, store catalog.Store) catalog.Run {
		t.Helper()
		run, err := store.BeginRun(ctx, "nfs://srv/export", "/")
		require.NoError(t, err)
		require.NoError(t, store.PutEntries(ctx, run.ID, sampleRecords()))
		return run
	}

	test.Run("SortedByPath", func(t *testing.T) {
		store := suite.NewStore(t)
		run := newRun(t, store)

		records, err := store.ListEntries(ctx, run.ID, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"/a.txt", "/docs", "/docs/readme.md", "/docs2", "/docs2/x", "/données/été.txt"}, paths(records))

		root, err := store.ListEntries(ctx, run.ID, "/")
		require.NoError(t, err)
		assert.Equal(t, records, root)
	})

	test.Run("FieldsRoundTrip", func(t *testing.T) {
		store := suite.NewStore(t)
		run := newRun(t, store)

		records, err := store.ListEntries(ctx, run.ID, "/a.txt")
		require.NoError(t, err)
		require.Len(t, records, 1)
		want := sampleRecords()[0]
		got := records[0]
		assert.Equal(t, want.Size, got.Size)
		assert.Equal(t, want.Used, got.Used)
		assert.Equal(t, want.Mode, got.Mode)
		assert.Equal(t, want.Type, got.Type)
		assert.True(t, want.Mtime.Equal(got.Mtime))
	})

	test.Run("PrefixStopsAtComponentBoundary", func(t *testing.T) {
		store := suite.NewStore(t)
		run := newRun(t, store)

		records, err := store.ListEntries(ctx, run.ID, "/docs")
		require.NoError(t, err)
		assert.Equal(t, []string{"/docs", "/docs/readme.md"}, paths(records))

		records, err = store.ListEntries(ctx, run.ID, "/docs/")
		require.NoError(t, err)
		assert.Equal(t, []string{"/docs", "/docs/readme.md"}, paths(records))
	})

	test.Run("NonASCIIPrefix", func(t *testing.T) {
		store := suite.NewStore(t)
		run := newRun(t, store)

		records, err := store.ListEntries(ctx, run.ID, "/données")
		require.NoError(t, err)
		assert.Equal(t, []string{"/données/été.txt"}, paths(records))
	})

	test.Run("ReplaceSamePath", func(t *testing.T) {
		store := suite.NewStore(t)
		run := newRun(t, store)

		require.NoError(t, store.PutEntries(ctx, run.ID, []catalog.Record{{Path: "/a.txt", Type: "file", Size: 999}}))
		records, err := store.ListEntries(ctx, run.ID, "/a.txt")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, uint64(999), records[0].Size)
	})

	test.Run("RunsAreIsolated", func(t *testing.T) {
		store := suite.NewStore(t)
		run := newRun(t, store)
		other, err := store.BeginRun(ctx, "nfs://srv/export", "/")
		require.NoError(t, err)

		records, err := store.ListEntries(ctx, other.ID, "")
		require.NoError(t, err)
		assert.Empty(t, records)

		records, err = store.ListEntries(ctx, run.ID, "")
		require.NoError(t, err)
		assert.Len(t, records, len(sampleRecords()))
	})

	test.Run("FinishedRunIsImmutable", func(t *testing.T) {
		store := suite.NewStore(t)
		run := newRun(t, store)
		_, err := store.FinishRun(ctx, run.ID, catalog.Totals{})
		require.NoError(t, err)

		err = store.PutEntries(ctx, run.ID, []catalog.Record{{Path: "/late"}})
		assert.ErrorIs(t, err, catalog.ErrRunFinished)
	})
}

func (suite *StoreTestSuite) testClosed(t *testing.T) {
	ctx := context.Background()
	store := suite.NewStore(t)
	run, err := store.BeginRun(ctx, "nfs://srv/export", "/")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, catalog.ErrClosed)
	_, err = store.BeginRun(ctx, "nfs://srv/export", "/")
	assert.ErrorIs(t, err, catalog.ErrClosed)
	_, err = store.ListRuns(ctx)
	assert.ErrorIs(t, err, catalog.ErrClosed)
}
