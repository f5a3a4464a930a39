// Package memory provides an in-process Store implementation. It backs the
// test suites and local development; deployments use the Redis store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
)

// Store keeps all documents in a flat path-keyed map. Change notifications
// are delivered synchronously, after the mutation is visible, without
// holding the store lock so callbacks may re-enter the store.
type Store struct {
	mu      sync.Mutex
	docs    map[string][]byte
	nextSub int
	docSubs map[string]map[int]store.DocumentFunc
	colSubs map[string]map[int]store.ChildFunc
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		docs:    make(map[string][]byte),
		docSubs: make(map[string]map[int]store.DocumentFunc),
		colSubs: make(map[string]map[int]store.ChildFunc),
	}
}

func (s *Store) GetDocument(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *Store) SetDocument(_ context.Context, path string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory: marshal document %s: %w", path, err)
	}
	s.mu.Lock()
	_, existed := s.docs[path]
	s.docs[path] = data
	docFns, childFns, ev := s.collectNotifications(path, data, existed)
	s.mu.Unlock()

	s.deliver(docFns, childFns, data, ev)
	return nil
}

func (s *Store) UpdateDocument(ctx context.Context, path string, fields map[string]interface{}) error {
	s.mu.Lock()
	current, ok := s.docs[path]
	s.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}

	var merged map[string]interface{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return fmt.Errorf("memory: decode document %s for update: %w", path, err)
	}
	for k, v := range fields {
		merged[k] = v
	}
	return s.SetDocument(ctx, path, merged)
}

func (s *Store) DeleteDocument(_ context.Context, path string) error {
	s.mu.Lock()
	_, existed := s.docs[path]
	delete(s.docs, path)
	var docFns []store.DocumentFunc
	var childFns []store.ChildFunc
	var ev store.ChildEvent
	if existed {
		docFns, childFns, ev = s.collectNotifications(path, nil, true)
		ev = store.ChildEvent{Type: store.ChildRemoved, ID: childID(path)}
	}
	s.mu.Unlock()

	if existed {
		s.deliver(docFns, childFns, nil, ev)
	}
	return nil
}

func (s *Store) AddToCollection(ctx context.Context, path string, value interface{}) (string, error) {
	id := uuid.NewString()
	if err := s.SetDocument(ctx, path+"/"+id, value); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) ListCollection(_ context.Context, path string) (map[string][]byte, error) {
	prefix := path + "/"
	out := make(map[string][]byte)
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, data := range s.docs {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.Contains(rest, "/") {
			continue // grandchild of a nested collection
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		out[rest] = cp
	}
	return out, nil
}

func (s *Store) SubscribeDocument(_ context.Context, path string, fn store.DocumentFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	if s.docSubs[path] == nil {
		s.docSubs[path] = make(map[int]store.DocumentFunc)
	}
	s.docSubs[path][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.docSubs[path], id)
	}, nil
}

func (s *Store) SubscribeCollection(_ context.Context, path string, fn store.ChildFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	if s.colSubs[path] == nil {
		s.colSubs[path] = make(map[int]store.ChildFunc)
	}
	s.colSubs[path][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.colSubs[path], id)
	}, nil
}

// collectNotifications snapshots the subscriber lists for a write to path.
// Must be called with the lock held.
func (s *Store) collectNotifications(path string, data []byte, existed bool) ([]store.DocumentFunc, []store.ChildFunc, store.ChildEvent) {
	var docFns []store.DocumentFunc
	for _, fn := range s.docSubs[path] {
		docFns = append(docFns, fn)
	}

	var childFns []store.ChildFunc
	parent := parentPath(path)
	if parent != "" {
		for _, fn := range s.colSubs[parent] {
			childFns = append(childFns, fn)
		}
	}

	evType := store.ChildAdded
	if existed {
		evType = store.ChildChanged
	}
	ev := store.ChildEvent{Type: evType, ID: childID(path), Data: data}
	return docFns, childFns, ev
}

func (s *Store) deliver(docFns []store.DocumentFunc, childFns []store.ChildFunc, data []byte, ev store.ChildEvent) {
	for _, fn := range docFns {
		fn(data)
	}
	for _, fn := range childFns {
		fn(ev)
	}
}

func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func childID(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
