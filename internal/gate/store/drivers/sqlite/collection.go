// Package sqlite backs a document collection with a single SQLite database
// file under a filesystem storage root. Query matching happens in the
// engine, not in SQL: documents are schemaless JSON bodies and the query
// language is equality on top-level fields.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/coralstack/coraldb/internal/gate/store"
	"github.com/coralstack/coraldb/pkg/idx"

	_ "modernc.org/sqlite"
)

// Adapter names the backing file: one database per collection, keyed by
// name inside a storage root.
type Adapter struct {
	StoragePath string
	Name        string
}

func (a Adapter) file() string {
	return filepath.Join(a.StoragePath, a.Name+".db")
}

func (a Adapter) dsn(autosync bool) string {
	sync := "normal"
	if autosync {
		sync = "full"
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(wal)")
	q.Add("_pragma", "synchronous("+sync+")")
	return "file:" + a.file() + "?" + q.Encode()
}

// Collection implements store.Collection on a SQLite file.
type Collection struct {
	db   *sql.DB
	opts store.Options
}

var _ store.Collection = (*Collection)(nil)

// Open creates the storage root if needed, opens the collection database
// and applies pending schema migrations.
func Open(adapter Adapter, opts store.Options) (*Collection, error) {
	if err := os.MkdirAll(adapter.StoragePath, 0o750); err != nil {
		return nil, fmt.Errorf("sqlite: create storage root: %w", err)
	}

	db, err := sql.Open("sqlite", adapter.dsn(opts.Autosync))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", adapter.file(), err)
	}

	c := &Collection{db: db, opts: opts}
	if err := c.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate %s: %w", adapter.file(), err)
	}
	return c, nil
}

func (c *Collection) Close() error { return c.db.Close() }

type row struct {
	id        string
	body      []byte
	createdAt int64
	updatedAt int64
}

func (c *Collection) document(r row) (store.Document, error) {
	doc := store.Document{}
	if err := json.Unmarshal(r.body, &doc); err != nil {
		return nil, fmt.Errorf("sqlite: decode document %s: %w", r.id, err)
	}
	doc["id"] = r.id
	if c.opts.Timestamps {
		doc["createdAt"] = r.createdAt
		doc["updatedAt"] = r.updatedAt
	}
	return doc, nil
}

// body strips the engine-owned fields before persisting.
func body(doc store.Document) ([]byte, error) {
	stripped := make(store.Document, len(doc))
	for k, v := range doc {
		switch k {
		case "id", "createdAt", "updatedAt":
			continue
		}
		stripped[k] = v
	}
	return json.Marshal(stripped)
}

// scan reads every row in insertion order and returns the documents
// matching query. All matching happens here; SQL only stores.
func (c *Collection) scan(ctx context.Context, q queryer, query store.Query) ([]store.Document, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, body, created_at, updated_at FROM documents ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.body, &r.createdAt, &r.updatedAt); err != nil {
			return nil, err
		}
		doc, err := c.document(r)
		if err != nil {
			return nil, err
		}
		if store.Matches(doc, query) {
			docs = append(docs, doc)
		}
	}
	return docs, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Collection) Find(ctx context.Context, query store.Query, opts store.FindOptions) ([]store.Document, error) {
	docs, err := c.scan(ctx, c.db, query)
	if err != nil {
		return nil, err
	}
	return store.Page(docs, opts), nil
}

func (c *Collection) Insert(ctx context.Context, doc store.Document) (store.Document, error) {
	id := doc.ID()
	if id == "" {
		id = idx.New().String()
	}

	raw, err := body(doc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (id, body, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, raw, now, now,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrDuplicateID, id)
		}
		return nil, err
	}

	return c.document(row{id: id, body: raw, createdAt: now, updatedAt: now})
}

func (c *Collection) Update(ctx context.Context, query store.Query, ops store.Ops, opts store.FindOptions) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	docs, err := c.scan(ctx, tx, query)
	if err != nil {
		return 0, err
	}
	docs = store.Page(docs, opts)

	now := time.Now().UnixMilli()
	for _, doc := range docs {
		updated, err := store.ApplyOps(doc, ops)
		if err != nil {
			return 0, err
		}
		raw, err := body(updated)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET body = ?, updated_at = ? WHERE id = ?`,
			raw, now, doc.ID(),
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (c *Collection) Remove(ctx context.Context, query store.Query, opts store.FindOptions) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	docs, err := c.scan(ctx, tx, query)
	if err != nil {
		return 0, err
	}
	docs = store.Page(docs, opts)

	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, doc.ID()); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (c *Collection) Count(ctx context.Context, query store.Query) (int, error) {
	docs, err := c.scan(ctx, c.db, query)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Drop truncates the collection. The backing file and registry entry stay,
// so the name remains usable immediately.
func (c *Collection) Drop(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents`)
	return err
}
