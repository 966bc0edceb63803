package store

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrUnsupportedOperator reports an update with an operator the engine does
// not know.
var ErrUnsupportedOperator = errors.New("store: unsupported update operator")

// Matches reports whether doc satisfies every field of query. Numeric
// values compare by magnitude so that 2 and 2.0 are equal regardless of
// whether a document came from JSON decoding or Go literals.
func Matches(doc Document, query Query) bool {
	for field, want := range query {
		got, ok := doc[field]
		if !ok {
			return false
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// ApplyOps returns a copy of doc with ops applied. The "id" field cannot be
// set or unset.
func ApplyOps(doc Document, ops Ops) (Document, error) {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	for op, fields := range ops {
		switch op {
		case "$set":
			for field, value := range fields {
				if field == "id" {
					continue
				}
				out[field] = value
			}
		case "$unset":
			for field := range fields {
				if field == "id" {
					continue
				}
				delete(out, field)
			}
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperator, op)
		}
	}

	return out, nil
}

// Page applies Skip and Limit to docs.
func Page(docs []Document, opts FindOptions) []Document {
	if opts.Skip > 0 {
		if opts.Skip >= len(docs) {
			return nil
		}
		docs = docs[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(docs) {
		docs = docs[:opts.Limit]
	}
	return docs
}
