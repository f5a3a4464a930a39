package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist at the given path.
var ErrNotFound = errors.New("store: document not found")

// ChildEventType classifies collection change notifications.
type ChildEventType string

const (
	ChildAdded   ChildEventType = "added"
	ChildChanged ChildEventType = "changed"
	ChildRemoved ChildEventType = "removed"
)

// ChildEvent describes one child change within a subscribed collection.
// Data is the encoded child document; it is nil for removals.
type ChildEvent struct {
	Type ChildEventType
	ID   string
	Data []byte
}

// DocumentFunc receives the encoded document on every change.
type DocumentFunc func(data []byte)

// ChildFunc receives collection child changes.
type ChildFunc func(ev ChildEvent)

// Store is the realtime document store the room core runs against.
// Paths are slash-separated; a collection is the parent path of its child
// documents. Within a single document, change notifications arrive in the
// order the store applied them; no ordering is guaranteed across documents.
type Store interface {
	// GetDocument returns the encoded document at path, or ErrNotFound.
	GetDocument(ctx context.Context, path string) ([]byte, error)

	// SetDocument writes the full document at path, creating it if absent.
	SetDocument(ctx context.Context, path string, value interface{}) error

	// UpdateDocument merges the given top-level fields into the document.
	// Returns ErrNotFound if the document does not exist.
	UpdateDocument(ctx context.Context, path string, fields map[string]interface{}) error

	// DeleteDocument removes the document. Deleting an absent document is
	// not an error.
	DeleteDocument(ctx context.Context, path string) error

	// AddToCollection appends a child with a generated id and returns it.
	AddToCollection(ctx context.Context, path string, value interface{}) (string, error)

	// ListCollection returns all direct children of the collection keyed
	// by child id. An absent collection yields an empty map.
	ListCollection(ctx context.Context, path string) (map[string][]byte, error)

	// SubscribeDocument delivers every subsequent change of the document.
	// The returned func cancels the subscription.
	SubscribeDocument(ctx context.Context, path string, fn DocumentFunc) (func(), error)

	// SubscribeCollection delivers child add/change/remove events for the
	// collection. The returned func cancels the subscription.
	SubscribeCollection(ctx context.Context, path string, fn ChildFunc) (func(), error)
}
