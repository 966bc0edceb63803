package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/coralstack/coraldb/internal/gate/catalog"
	"github.com/coralstack/coraldb/internal/gate/store"
)

var (
	ErrMissingPayload    = errors.New("A payload is required.")
	ErrMissingCollection = errors.New("A query should include a collection property.")
	ErrMissingOperation  = errors.New("A query should include an operation property (find, insert, update, remove).")
	ErrMissingQuery      = errors.New("This payload is missing a query.")
)

// QueryPayload is the data-operation request shape. For insert, the query
// object doubles as the record to insert.
type QueryPayload struct {
	Collection string `json:"collection"`
	Operation  string `json:"operation"`
	Data       struct {
		Query      store.Query       `json:"query,omitempty"`
		Operations store.Ops         `json:"operations,omitempty"`
		Options    store.FindOptions `json:"options,omitempty"`
	} `json:"data"`
}

// QueryService validates data-operation payloads and routes them to the
// resolved collection.
type QueryService struct {
	Catalog *catalog.Catalog
}

// Query checks the payload shape, resolves (and lazily provisions) the
// target collection, and dispatches the operation. Storage errors pass
// through unchanged.
func (s *QueryService) Query(ctx context.Context, payload *QueryPayload) (any, error) {
	if payload == nil {
		return nil, ErrMissingPayload
	}
	if payload.Collection == "" {
		return nil, ErrMissingCollection
	}
	if payload.Operation == "" {
		return nil, ErrMissingOperation
	}

	collection, err := s.Catalog.GetOrCreate(payload.Collection)
	if err != nil {
		return nil, err
	}

	if payload.Operation != "drop" && len(payload.Data.Query) == 0 {
		return nil, ErrMissingQuery
	}

	switch payload.Operation {
	case "drop":
		if err := collection.Drop(ctx); err != nil {
			return nil, err
		}
		return map[string]bool{"dropped": true}, nil

	case "find":
		docs, err := collection.Find(ctx, payload.Data.Query, payload.Data.Options)
		if err != nil {
			return nil, err
		}
		if docs == nil {
			docs = []store.Document{}
		}
		return docs, nil

	case "insert":
		return collection.Insert(ctx, store.Document(payload.Data.Query))

	case "update":
		n, err := collection.Update(ctx, payload.Data.Query, payload.Data.Operations, payload.Data.Options)
		if err != nil {
			return nil, err
		}
		return map[string]int{"updated": n}, nil

	case "remove":
		n, err := collection.Remove(ctx, payload.Data.Query, payload.Data.Options)
		if err != nil {
			return nil, err
		}
		return map[string]int{"removed": n}, nil

	default:
		return nil, fmt.Errorf("Unsupported operation: %q.", payload.Operation)
	}
}
