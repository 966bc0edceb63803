package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	t.Parallel()

	doc := Document{"name": "x", "count": float64(2), "nested": map[string]any{"a": 1}}

	require.True(t, Matches(doc, nil))
	require.True(t, Matches(doc, Query{}))
	require.True(t, Matches(doc, Query{"name": "x"}))
	require.True(t, Matches(doc, Query{"name": "x", "count": 2}))
	require.True(t, Matches(doc, Query{"count": 2.0}))
	require.True(t, Matches(doc, Query{"nested": map[string]any{"a": 1}}))

	require.False(t, Matches(doc, Query{"name": "y"}))
	require.False(t, Matches(doc, Query{"missing": "x"}))
	require.False(t, Matches(doc, Query{"count": 3}))
}

func TestApplyOps(t *testing.T) {
	t.Parallel()

	doc := Document{"id": "abc", "name": "x", "stale": true}

	t.Run("set and unset", func(t *testing.T) {
		out, err := ApplyOps(doc, Ops{
			"$set":   {"name": "y", "new": 1},
			"$unset": {"stale": ""},
		})
		require.NoError(t, err)
		require.Equal(t, Document{"id": "abc", "name": "y", "new": 1}, out)

		// The input document is untouched.
		require.Equal(t, "x", doc["name"])
	})

	t.Run("id is immutable", func(t *testing.T) {
		out, err := ApplyOps(doc, Ops{"$set": {"id": "evil"}, "$unset": {"id": ""}})
		require.NoError(t, err)
		require.Equal(t, "abc", out.ID())
	})

	t.Run("unknown operator", func(t *testing.T) {
		_, err := ApplyOps(doc, Ops{"$inc": {"count": 1}})
		require.ErrorIs(t, err, ErrUnsupportedOperator)
	})
}

func TestPage(t *testing.T) {
	t.Parallel()

	docs := []Document{{"n": 0}, {"n": 1}, {"n": 2}, {"n": 3}}

	require.Len(t, Page(docs, FindOptions{}), 4)
	require.Equal(t, docs[1:], Page(docs, FindOptions{Skip: 1}))
	require.Equal(t, docs[:2], Page(docs, FindOptions{Limit: 2}))
	require.Equal(t, docs[1:3], Page(docs, FindOptions{Skip: 1, Limit: 2}))
	require.Empty(t, Page(docs, FindOptions{Skip: 10}))
}
