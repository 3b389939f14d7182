// Package primary is the authoritative document store for Records.
//
// Two drivers exist: Firestore for deployments, and an in-process Memory
// store for development and tests.  Both speak the document key vocabulary
// of package record, so change events produced by the document store decode
// with record.DecodePatch.
package primary

import (
	"context"
	"errors"

	"github.com/publicpulse/pulse/internal/record"
)

var (
	// ErrNotFound is returned when an id has no document.
	ErrNotFound = errors.New("primary: record not found")
	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("primary: record already exists")
)

// Store is the Primary Store contract.
type Store interface {
	// Get returns the document for id or ErrNotFound.
	Get(ctx context.Context, id string) (record.Record, error)
	// Create writes r under r.ID.  An existing document is left untouched
	// and ErrExists is returned.
	Create(ctx context.Context, r record.Record) error
	// Patch writes the carried fields of p onto an existing document.
	Patch(ctx context.Context, id string, p record.Patch) error
	// Delete removes id.  Absence is not an error.
	Delete(ctx context.Context, id string) error
	// Each calls fn for up to limit documents (limit <= 0 means all).
	Each(ctx context.Context, limit int, fn func(record.Record) error) error
}

// fromDocument maps a raw document onto a Record.
func fromDocument(id string, doc map[string]any) (record.Record, error) {
	p, err := record.DecodePatch(doc)
	if err != nil {
		return record.Record{}, err
	}
	return p.Apply(record.Record{ID: id}).WithDefaults(), nil
}
