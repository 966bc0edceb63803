package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coralstack/coraldb/internal/gate/catalog"
	"github.com/coralstack/coraldb/internal/gate/store"
)

func newQueryService(t *testing.T, defs []catalog.ShardedCollectionDef) *QueryService {
	t.Helper()
	cat, err := catalog.New(t.TempDir(), defs, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	return &QueryService{Catalog: cat}
}

func decodePayload(t *testing.T, raw string) *QueryPayload {
	t.Helper()
	var p QueryPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func TestQueryPayloadValidation(t *testing.T) {
	t.Parallel()
	svc := newQueryService(t, nil)
	ctx := context.Background()

	t.Run("nil payload", func(t *testing.T) {
		_, err := svc.Query(ctx, nil)
		require.ErrorIs(t, err, ErrMissingPayload)
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := svc.Query(ctx, decodePayload(t, `{"operation":"find"}`))
		require.ErrorIs(t, err, ErrMissingCollection)
	})

	t.Run("missing operation", func(t *testing.T) {
		_, err := svc.Query(ctx, decodePayload(t, `{"collection":"widgets"}`))
		require.ErrorIs(t, err, ErrMissingOperation)
	})

	t.Run("missing query", func(t *testing.T) {
		for _, op := range []string{"find", "insert", "update", "remove"} {
			_, err := svc.Query(ctx, &QueryPayload{Collection: "widgets", Operation: op})
			require.ErrorIs(t, err, ErrMissingQuery, "operation %s", op)
		}
	})

	t.Run("unsupported operation", func(t *testing.T) {
		_, err := svc.Query(ctx, decodePayload(t,
			`{"collection":"widgets","operation":"upsert","data":{"query":{"a":1}}}`))
		require.EqualError(t, err, `Unsupported operation: "upsert".`)
	})
}

func TestQueryLifecycle(t *testing.T) {
	t.Parallel()
	svc := newQueryService(t, nil)
	ctx := context.Background()

	// Insert lazily provisions the collection; the query object is the
	// record itself.
	inserted, err := svc.Query(ctx, decodePayload(t,
		`{"collection":"widgets","operation":"insert","data":{"query":{"name":"sprocket","qty":4}}}`))
	require.NoError(t, err)
	doc, ok := inserted.(store.Document)
	require.True(t, ok)
	require.NotEmpty(t, doc.ID())

	found, err := svc.Query(ctx, decodePayload(t,
		`{"collection":"widgets","operation":"find","data":{"query":{"name":"sprocket"}}}`))
	require.NoError(t, err)
	docs, ok := found.([]store.Document)
	require.True(t, ok)
	require.Len(t, docs, 1)
	require.EqualValues(t, 4, docs[0]["qty"])

	updated, err := svc.Query(ctx, decodePayload(t,
		`{"collection":"widgets","operation":"update","data":{"query":{"name":"sprocket"},"operations":{"$set":{"qty":9}}}}`))
	require.NoError(t, err)
	require.Equal(t, map[string]int{"updated": 1}, updated)

	removed, err := svc.Query(ctx, decodePayload(t,
		`{"collection":"widgets","operation":"remove","data":{"query":{"name":"sprocket"}}}`))
	require.NoError(t, err)
	require.Equal(t, map[string]int{"removed": 1}, removed)
}

func TestQueryFindMissReturnsEmptySlice(t *testing.T) {
	t.Parallel()
	svc := newQueryService(t, nil)

	found, err := svc.Query(context.Background(), decodePayload(t,
		`{"collection":"widgets","operation":"find","data":{"query":{"name":"nothing"}}}`))
	require.NoError(t, err)
	require.Equal(t, []store.Document{}, found)
}

func TestQueryDropNeedsNoQuery(t *testing.T) {
	t.Parallel()
	svc := newQueryService(t, nil)
	ctx := context.Background()

	_, err := svc.Query(ctx, decodePayload(t,
		`{"collection":"widgets","operation":"insert","data":{"query":{"name":"a"}}}`))
	require.NoError(t, err)

	dropped, err := svc.Query(ctx, decodePayload(t,
		`{"collection":"widgets","operation":"drop"}`))
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"dropped": true}, dropped)

	// The collection survives a drop, empty.
	found, err := svc.Query(ctx, decodePayload(t,
		`{"collection":"widgets","operation":"find","data":{"query":{"name":"a"}}}`))
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestQueryShardedCollection(t *testing.T) {
	t.Parallel()
	svc := newQueryService(t, []catalog.ShardedCollectionDef{
		{Name: "events", ShardKey: "region", ShardCount: 4},
	})
	ctx := context.Background()

	for _, region := range []string{"eu", "us", "ap", "eu"} {
		_, err := svc.Query(ctx, decodePayload(t,
			`{"collection":"events","operation":"insert","data":{"query":{"region":"`+region+`","kind":"login"}}}`))
		require.NoError(t, err)
	}

	found, err := svc.Query(ctx, decodePayload(t,
		`{"collection":"events","operation":"find","data":{"query":{"region":"eu"}}}`))
	require.NoError(t, err)
	require.Len(t, found.([]store.Document), 2)

	// Fan-out query without the shard key.
	all, err := svc.Query(ctx, decodePayload(t,
		`{"collection":"events","operation":"find","data":{"query":{"kind":"login"}}}`))
	require.NoError(t, err)
	require.Len(t, all.([]store.Document), 4)
}
