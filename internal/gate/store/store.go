package store

import (
	"context"
	"errors"
)

// ErrDuplicateID reports an insert whose explicit id is already taken.
var ErrDuplicateID = errors.New("store: duplicate id")

// Document is a schemaless record. The engine assigns an "id" field on
// insert when the caller does not provide one; collections opened with the
// Timestamps option also maintain "createdAt" and "updatedAt".
type Document map[string]any

// ID returns the document's id field, or "" when unset.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Query matches documents by equality on top-level fields. A nil or empty
// query matches every document.
type Query map[string]any

// Ops describes an update: operator name to affected fields. Supported
// operators are "$set" and "$unset".
type Ops map[string]map[string]any

// FindOptions narrow the result set of a read or bulk write.
type FindOptions struct {
	Limit int `json:"limit,omitempty"`
	Skip  int `json:"skip,omitempty"`
}

// Options are collection provisioning options.
type Options struct {
	// Autosync forces every write to disk before the call returns.
	Autosync bool `json:"autosync"`
	// Timestamps maintains createdAt/updatedAt on documents.
	Timestamps bool `json:"timestamps"`
}

// DefaultOptions are used for every lazily provisioned collection.
var DefaultOptions = Options{Autosync: true, Timestamps: true}

// Collection is a named set of documents. Implementations are safe for
// concurrent use.
type Collection interface {
	// Find returns documents matching query, in insertion order.
	Find(ctx context.Context, query Query, opts FindOptions) ([]Document, error)

	// Insert stores doc and returns it with id (and timestamps) assigned.
	Insert(ctx context.Context, doc Document) (Document, error)

	// Update applies ops to every document matching query and reports how
	// many were updated.
	Update(ctx context.Context, query Query, ops Ops, opts FindOptions) (int, error)

	// Remove deletes every document matching query and reports how many
	// were removed.
	Remove(ctx context.Context, query Query, opts FindOptions) (int, error)

	// Count reports the number of documents matching query.
	Count(ctx context.Context, query Query) (int, error)

	// Drop removes every document in the collection. The collection stays
	// usable afterwards.
	Drop(ctx context.Context) error

	// Close releases the backing resources.
	Close() error
}
