package primary

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/publicpulse/pulse/internal/record"
)

// DefaultCollection is the collection Records live in.
const DefaultCollection = "reports"

// Firestore is the production Store.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore opens a client for projectID.  credentialsFile may be empty
// to use Application Default Credentials.
func NewFirestore(ctx context.Context, projectID, collection, credentialsFile string) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &Firestore{client: c, collection: collection}, nil
}

func (f *Firestore) doc(id string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(id)
}

// Get implements Store.
func (f *Firestore) Get(ctx context.Context, id string) (record.Record, error) {
	snap, err := f.doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return record.Record{}, ErrNotFound
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("firestore get %s: %w", id, err)
	}
	return fromDocument(snap.Ref.ID, snap.Data())
}

// Create implements Store.
func (f *Firestore) Create(ctx context.Context, r record.Record) error {
	_, err := f.doc(r.ID).Create(ctx, record.Full(r).Fields())
	if status.Code(err) == codes.AlreadyExists {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("firestore create %s: %w", r.ID, err)
	}
	return nil
}

// Patch implements Store.  Update fails with NotFound for missing
// documents, so a patch never creates a partial Record.
func (f *Firestore) Patch(ctx context.Context, id string, p record.Patch) error {
	fields := p.Fields()
	if len(fields) == 0 {
		return nil
	}
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	_, err := f.doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("firestore update %s: %w", id, err)
	}
	return nil
}

// Delete implements Store.
func (f *Firestore) Delete(ctx context.Context, id string) error {
	if _, err := f.doc(id).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore delete %s: %w", id, err)
	}
	return nil
}

// Each implements Store.
func (f *Firestore) Each(ctx context.Context, limit int, fn func(record.Record) error) error {
	q := f.client.Collection(f.collection).Query
	if limit > 0 {
		q = q.Limit(limit)
	}
	it := q.Documents(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("firestore iterate: %w", err)
		}
		r, err := fromDocument(snap.Ref.ID, snap.Data())
		if err != nil {
			return fmt.Errorf("firestore decode %s: %w", snap.Ref.ID, err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
}

// Close releases the client.
func (f *Firestore) Close() error { return f.client.Close() }
