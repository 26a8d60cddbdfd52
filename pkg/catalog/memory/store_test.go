package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfsusage/pkg/catalog"
	catalogtesting "github.com/marmos91/nfsusage/pkg/catalog/testing"
)

// TestMemoryStore runs the complete catalog suite against Store.
func TestMemoryStore(t *testing.T) {
	suite := &catalogtesting.StoreTestSuite{
		NewStore: func(t *testing.T) catalog.Store {
			return New(Config{})
		},
	}

	suite.Run(t)
}

func TestMaxRuns(t *testing.T) {
	ctx := context.Background()
	store := New(Config{MaxRuns: 2})

	first, err := store.BeginRun(ctx, "nfs://srv/export", "/")
	require.NoError(t, err)
	for range 2 {
		_, err := store.BeginRun(ctx, "nfs://srv/export", "/")
		require.NoError(t, err)
	}

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = store.GetRun(ctx, first.ID)
	assert.ErrorIs(t, err, catalog.ErrRunNotFound)
}
