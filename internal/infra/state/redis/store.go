package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
)

// Store implements store.Store on Redis. Documents are JSON strings keyed
// by their path; change fan-out rides Redis pub/sub, one channel per
// document and one per parent collection. Pub/sub is fire-and-forget, which
// matches the eventually-consistent contract of the store interface.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ store.Store = (*Store)(nil)

// changeNotice is the pub/sub payload for both document and collection
// channels.
type changeNotice struct {
	Type store.ChildEventType `json:"type"`
	ID   string               `json:"id"`
	Data json.RawMessage      `json:"data,omitempty"`
}

func New(client *redis.Client, keyPrefix string) *Store {
	if client == nil {
		panic("redis client cannot be nil for Store")
	}
	if keyPrefix == "" {
		keyPrefix = "sr:"
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) docKey(path string) string {
	return s.keyPrefix + "doc:" + path
}

func (s *Store) docChannel(path string) string {
	return s.keyPrefix + "ch:doc:" + path
}

func (s *Store) colChannel(path string) string {
	return s.keyPrefix + "ch:col:" + path
}

func (s *Store) GetDocument(ctx context.Context, path string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.docKey(path)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get document %s: %w", path, err)
	}
	return []byte(val), nil
}

func (s *Store) SetDocument(ctx context.Context, path string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: marshal document %s: %w", path, err)
	}

	existed, err := s.client.Exists(ctx, s.docKey(path)).Result()
	if err != nil {
		return fmt.Errorf("redis: check document %s: %w", path, err)
	}
	if err := s.client.Set(ctx, s.docKey(path), string(data), 0).Err(); err != nil {
		return fmt.Errorf("redis: set document %s: %w", path, err)
	}

	evType := store.ChildAdded
	if existed > 0 {
		evType = store.ChildChanged
	}
	s.publish(ctx, path, changeNotice{Type: evType, ID: childID(path), Data: data})
	return nil
}

func (s *Store) UpdateDocument(ctx context.Context, path string, fields map[string]interface{}) error {
	// Read-modify-write without a transaction: the room core's write
	// ownership rules (one writer per document field set) make lost
	// updates across distinct fields rare enough to accept here.
	current, err := s.GetDocument(ctx, path)
	if err != nil {
		return err
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return fmt.Errorf("redis: decode document %s for update: %w", path, err)
	}
	for k, v := range fields {
		merged[k] = v
	}
	return s.SetDocument(ctx, path, merged)
}

func (s *Store) DeleteDocument(ctx context.Context, path string) error {
	removed, err := s.client.Del(ctx, s.docKey(path)).Result()
	if err != nil {
		return fmt.Errorf("redis: delete document %s: %w", path, err)
	}
	if removed > 0 {
		s.publish(ctx, path, changeNotice{Type: store.ChildRemoved, ID: childID(path)})
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

func (s *Store) ListCollection(ctx context.Context, path string) (map[string][]byte, error) {
	prefix := s.docKey(path) + "/"
	out := make(map[string][]byte)

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan collection %s: %w", path, err)
		}
		for _, key := range keys {
			rest := strings.TrimPrefix(key, prefix)
			if strings.Contains(rest, "/") {
				continue // grandchild of a nested collection
			}
			val, err := s.client.Get(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue // deleted between SCAN and GET
				}
				return nil, fmt.Errorf("redis: get collection child %s: %w", key, err)
			}
			out[rest] = []byte(val)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (s *Store) SubscribeDocument(ctx context.Context, path string, fn store.DocumentFunc) (func(), error) {
	return s.subscribe(ctx, s.docChannel(path), func(notice changeNotice) {
		if notice.Type == store.ChildRemoved {
			fn(nil)
			return
		}
		fn([]byte(notice.Data))
	})
}

func (s *Store) SubscribeCollection(ctx context.Context, path string, fn store.ChildFunc) (func(), error) {
	return s.subscribe(ctx, s.colChannel(path), func(notice changeNotice) {
		fn(store.ChildEvent{Type: notice.Type, ID: notice.ID, Data: []byte(notice.Data)})
	})
}

func (s *Store) subscribe(ctx context.Context, channel string, handle func(changeNotice)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, channel)
	// Receive forces the SUBSCRIBE round trip so a write issued right
	// after SubscribeDocument returns cannot be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var notice changeNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				logrus.WithField("channel", channel).WithError(err).Warn("Dropping malformed change notice")
				continue
			}
			handle(notice)
		}
	}()

	return func() { _ = pubsub.Close() }, nil
}

// publish notifies the document channel and the parent collection channel.
// Failures are logged, not returned: the write itself succeeded and late
// subscribers recover state from GetDocument/ListCollection.
func (s *Store) publish(ctx context.Context, path string, notice changeNotice) {
	payload, err := json.Marshal(notice)
	if err != nil {
		logrus.WithField("path", path).WithError(err).Error("Failed to marshal change notice")
		return
	}
	if err := s.client.Publish(ctx, s.docChannel(path), payload).Err(); err != nil {
		logrus.WithField("path", path).WithError(err).Warn("Failed to publish document change")
	}
	if parent := parentPath(path); parent != "" {
		if err := s.client.Publish(ctx, s.colChannel(parent), payload).Err(); err != nil {
			logrus.WithField("path", path).WithError(err).Warn("Failed to publish collection change")
		}
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
