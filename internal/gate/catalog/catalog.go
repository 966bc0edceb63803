// Package catalog maintains the process-wide registry of named collections
// and provisions them lazily on first reference.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coralstack/coraldb/internal/gate/store"
	"github.com/coralstack/coraldb/internal/gate/store/drivers/sqlite"
)

var (
	// ErrCollectionExists reports an explicit creation against a name that
	// is already registered.
	ErrCollectionExists = errors.New("catalog: collection already exists")
	// ErrBadShardCount reports a sharded declaration with a shard count
	// below one.
	ErrBadShardCount = errors.New("catalog: shard count must be at least 1")
)

// ShardedCollectionDef declares at startup that a collection name is
// provisioned sharded. The lookup happens once, at first provisioning.
type ShardedCollectionDef struct {
	Name       string `json:"name"`
	ShardKey   string `json:"shardKey"`
	ShardCount int    `json:"shardCount"`
}

type entry struct {
	collection store.Collection
	options    store.Options
}

// Catalog maps collection names to provisioned handles. First creation per
// name is serialized under the registry mutex, so concurrent first access
// yields exactly one handle.
type Catalog struct {
	dataDir string
	sharded map[string]ShardedCollectionDef
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// New builds a catalog rooted at dataDir. Names matching a declaration in
// defs are provisioned as sharded collections; all other names get plain
// collections with default options.
func New(dataDir string, defs []ShardedCollectionDef, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sharded := make(map[string]ShardedCollectionDef, len(defs))
	for _, def := range defs {
		if def.ShardCount < 1 {
			return nil, fmt.Errorf("%w: %s", ErrBadShardCount, def.Name)
		}
		sharded[def.Name] = def
	}

	return &Catalog{
		dataDir: dataDir,
		sharded: sharded,
		logger:  logger.With("module", "catalog"),
		entries: make(map[string]*entry),
	}, nil
}

// GetOrCreate resolves name to its collection handle, provisioning it on
// first reference.
func (c *Catalog) GetOrCreate(name string) (store.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok {
		return e.collection, nil
	}
	return c.provision(name, store.DefaultOptions)
}

// CreateWithOptions provisions name with custom options. It fails if the
// name is already registered; explicit creation happens at most once.
func (c *Catalog) CreateWithOptions(name string, opts store.Options) (store.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	return c.provision(name, opts)
}

// provision is called with c.mu held.
func (c *Catalog) provision(name string, opts store.Options) (store.Collection, error) {
	var collection store.Collection

	if def, ok := c.sharded[name]; ok {
		shards := make([]store.Collection, 0, def.ShardCount)
		for i := 0; i < def.ShardCount; i++ {
			shard, err := sqlite.Open(sqlite.Adapter{
				StoragePath: c.dataDir,
				Name:        fmt.Sprintf("%s.%d", name, i),
			}, opts)
			if err != nil {
				for _, s := range shards {
					_ = s.Close()
				}
				return nil, fmt.Errorf("catalog: provision shard %d of %s: %w", i, name, err)
			}
			shards = append(shards, shard)
		}
		collection = store.NewSharded(def.ShardKey, shards)
		c.logger.Info("provisioned sharded collection",
			"name", name, "shard_key", def.ShardKey, "shard_count", def.ShardCount)
	} else {
		plain, err := sqlite.Open(sqlite.Adapter{StoragePath: c.dataDir, Name: name}, opts)
		if err != nil {
			return nil, fmt.Errorf("catalog: provision %s: %w", name, err)
		}
		collection = plain
		c.logger.Info("provisioned collection", "name", name)
	}

	c.entries[name] = &entry{collection: collection, options: opts}
	return collection, nil
}

// Close releases every provisioned collection.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, e := range c.entries {
		if err := e.collection.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.entries, name)
	}
	return firstErr
}
