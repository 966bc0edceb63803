package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/coralstack/coraldb/internal/gate/store"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T, defs []ShardedCollectionDef) *Catalog {
	t.Helper()
	c, err := New(t.TempDir(), defs, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	t.Parallel()
	c := newCatalog(t, nil)

	first, err := c.GetOrCreate("widgets")
	require.NoError(t, err)
	second, err := c.GetOrCreate("widgets")
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestConcurrentFirstAccessYieldsOneHandle(t *testing.T) {
	t.Parallel()
	c := newCatalog(t, nil)

	var wg sync.WaitGroup
	handles := make([]store.Collection, 16)
	for i := range handles {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.GetOrCreate("contested")
			require.NoError(t, err)
			handles[i] = h
		}()
	}
	wg.Wait()

	for _, h := range handles[1:] {
		require.Same(t, handles[0], h)
	}
}

func TestCreateWithOptionsIsOneShot(t *testing.T) {
	t.Parallel()
	c := newCatalog(t, nil)

	_, err := c.CreateWithOptions("special", store.Options{Autosync: false, Timestamps: false})
	require.NoError(t, err)

	_, err = c.CreateWithOptions("special", store.DefaultOptions)
	require.ErrorIs(t, err, ErrCollectionExists)

	// Lazy access after explicit creation returns the same handle.
	h, err := c.GetOrCreate("special")
	require.NoError(t, err)
	require.NotNil(t, h)
}

func TestShardedDeclarationProvisionsShardedHandle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCatalog(t, []ShardedCollectionDef{
		{Name: "events", ShardKey: "tenant", ShardCount: 3},
	})

	events, err := c.GetOrCreate("events")
	require.NoError(t, err)
	_, ok := events.(*store.Sharded)
	require.True(t, ok)

	plain, err := c.GetOrCreate("widgets")
	require.NoError(t, err)
	_, ok = plain.(*store.Sharded)
	require.False(t, ok)

	// Records written through the sharded handle come back.
	_, err = events.Insert(ctx, store.Document{"tenant": "t1", "kind": "signup"})
	require.NoError(t, err)
	docs, err := events.Find(ctx, store.Query{"tenant": "t1"}, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestBadShardCount(t *testing.T) {
	t.Parallel()

	_, err := New(t.TempDir(), []ShardedCollectionDef{{Name: "events", ShardKey: "k", ShardCount: 0}}, nil)
	require.ErrorIs(t, err, ErrBadShardCount)
}
