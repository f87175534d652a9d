package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepository is an in-process Repository. Documents are kept
// JSON-encoded so callers never share mutable state with the store.
type MemoryRepository[T any] struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryRepository[T any]() *MemoryRepository[T] {
	return &MemoryRepository[T]{docs: make(map[string][]byte)}
}

func (m *MemoryRepository[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	raw, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %q: %w", id, err)
	}
	return &doc, nil
}

func (m *MemoryRepository[T]) Put(ctx context.Context, id string, doc *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", id, err)
	}
	m.mu.Lock()
	m.docs[id] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository[T]) Update(ctx context.Context, id string, fn UpdateFunc[T]) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *T
	if raw, ok := m.docs[id]; ok {
		current = new(T)
		if err := json.Unmarshal(raw, current); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %q: %w", id, err)
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %q: %w", id, err)
	}
	m.docs[id] = raw
	return next, nil
}

func (m *MemoryRepository[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryRepository[T]) List(ctx context.Context) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	docs := make([]*T, 0, len(ids))
	for _, id := range ids {
		doc, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}
