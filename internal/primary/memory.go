package primary

import (
	"context"
	"sort"
	"sync"

	"github.com/publicpulse/pulse/internal/record"
)

// Memory is an in-process Store.  Documents round-trip through the same
// key vocabulary as Firestore so decoding rules stay identical.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]any)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id string) (record.Record, error) {
	m.mu.RLock()
	doc, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return record.Record{}, ErrNotFound
	}
	return fromDocument(id, doc)
}

// Create implements Store.
func (m *Memory) Create(_ context.Context, r record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[r.ID]; ok {
		return ErrExists
	}
	m.docs[r.ID] = record.Full(r).Fields()
	return nil
}

// Patch implements Store.
func (m *Memory) Patch(_ context.Context, id string, p record.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range p.Fields() {
		doc[k] = v
	}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.docs, id)
	m.mu.Unlock()
	return nil
}

// Each implements Store.  Documents are visited in id order.
func (m *Memory) Each(ctx context.Context, limit int, fn func(record.Record) error) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	for i, id := range ids {
		if limit > 0 && i >= limit {
			break
		}
		r, err := m.Get(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
