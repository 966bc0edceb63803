package store

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/coralstack/coraldb/pkg/idx"
)

// Sharded partitions documents across several backing collections by a
// shard key. Operations whose query pins the shard key to a scalar value
// touch a single shard; everything else fans out.
type Sharded struct {
	shardKey string
	shards   []Collection
}

// NewSharded builds a sharded collection over the given shards.
func NewSharded(shardKey string, shards []Collection) *Sharded {
	return &Sharded{shardKey: shardKey, shards: shards}
}

func (s *Sharded) shardFor(value any) Collection {
	h := fnv.New32a()
	_, _ = fmt.Fprint(h, value)
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// pinned returns the single shard the query targets, or nil when the query
// does not constrain the shard key to a scalar.
func (s *Sharded) pinned(query Query) Collection {
	value, ok := query[s.shardKey]
	if !ok {
		return nil
	}
	switch value.(type) {
	case map[string]any, []any, Document, Query:
		return nil
	}
	return s.shardFor(value)
}

func (s *Sharded) Find(ctx context.Context, query Query, opts FindOptions) ([]Document, error) {
	if shard := s.pinned(query); shard != nil {
		return shard.Find(ctx, query, opts)
	}

	var merged []Document
	for _, shard := range s.shards {
		docs, err := shard.Find(ctx, query, FindOptions{})
		if err != nil {
			return nil, err
		}
		merged = append(merged, docs...)
	}
	return Page(merged, opts), nil
}

// Insert pins the document by its shard key value. Documents without the
// shard key hash their id instead, so they still land on a stable shard.
func (s *Sharded) Insert(ctx context.Context, doc Document) (Document, error) {
	value, ok := doc[s.shardKey]
	if !ok {
		if doc.ID() == "" {
			copied := make(Document, len(doc)+1)
			for k, v := range doc {
				copied[k] = v
			}
			copied["id"] = idx.New().String()
			doc = copied
		}
		value = doc.ID()
	}
	return s.shardFor(value).Insert(ctx, doc)
}

func (s *Sharded) Update(ctx context.Context, query Query, ops Ops, opts FindOptions) (int, error) {
	if shard := s.pinned(query); shard != nil {
		return shard.Update(ctx, query, ops, opts)
	}

	total := 0
	for _, shard := range s.shards {
		n, err := shard.Update(ctx, query, ops, opts)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Sharded) Remove(ctx context.Context, query Query, opts FindOptions) (int, error) {
	if shard := s.pinned(query); shard != nil {
		return shard.Remove(ctx, query, opts)
	}

	total := 0
	for _, shard := range s.shards {
		n, err := shard.Remove(ctx, query, opts)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Sharded) Count(ctx context.Context, query Query) (int, error) {
	if shard := s.pinned(query); shard != nil {
		return shard.Count(ctx, query)
	}

	total := 0
	for _, shard := range s.shards {
		n, err := shard.Count(ctx, query)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Sharded) Drop(ctx context.Context) error {
	for _, shard := range s.shards {
		if err := shard.Drop(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sharded) Close() error {
	var firstErr error
	for _, shard := range s.shards {
		if err := shard.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
