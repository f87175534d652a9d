package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Delete when no document exists for the id.
var ErrNotFound = errors.New("document not found")

// Getter is the read side of a repository. Get returns (nil, nil) when the
// id is unknown.
type Getter[T any] interface {
	Get(ctx context.Context, id string) (*T, error)
}

// UpdateFunc receives the current document, nil when absent, and returns the
// document to store. Returning a nil document leaves the store unchanged;
// returning an error aborts the update and is passed back to the caller.
type UpdateFunc[T any] func(current *T) (*T, error)

// Repository is a keyed document store.
type Repository[T any] interface {
	Getter[T]
	Put(ctx context.Context, id string, doc *T) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*T, error)
	// Update runs a read-modify-write on one document. Concurrent updates
	// of the same id are serialized. It returns the stored document.
	Update(ctx context.Context, id string, fn UpdateFunc[T]) (*T, error)
}
