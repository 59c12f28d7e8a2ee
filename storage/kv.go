package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucketPrefix prefixes every KV bucket created by KVStore.
const DefaultBucketPrefix = "NEWSDESK"

// KVStore is a RecordStore backed by NATS JetStream KV, one bucket per collection.
// Keys are record IDs; FindOneByField scans the bucket.
type KVStore struct {
	js      jetstream.JetStream
	prefix  string
	history uint8

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

// KVStoreOption configures a KVStore.
type KVStoreOption func(*KVStore)

// WithBucketPrefix sets the bucket name prefix.
func WithBucketPrefix(prefix string) KVStoreOption {
	return func(s *KVStore) {
		s.prefix = prefix
	}
}

// WithHistory sets how many revisions each key keeps.
func WithHistory(n uint8) KVStoreOption {
	return func(s *KVStore) {
		s.history = n
	}
}

// NewKVStore creates a KV-backed store. Buckets are created lazily.
func NewKVStore(js jetstream.JetStream, opts ...KVStoreOption) *KVStore {
	s := &KVStore{
		js:      js,
		prefix:  DefaultBucketPrefix,
		history: 5,
		buckets: make(map[string]jetstream.KeyValue),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BucketName returns the bucket used for a collection.
func (s *KVStore) BucketName(collection string) string {
	return fmt.Sprintf("%s_%s", s.prefix, strings.ToUpper(collection))
}

func (s *KVStore) bucket(ctx context.Context, collection string) (jetstream.KeyValue, error) {
	if err := ValidateName(collection); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if kv, ok := s.buckets[collection]; ok {
		return kv, nil
	}
	kv, err := getOrCreateBucket(ctx, s.js, s.BucketName(collection), s.history)
	if err != nil {
		return nil, fmt.Errorf("open bucket for %s: %w", collection, err)
	}
	s.buckets[collection] = kv
	return kv, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string, history uint8) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("newsdesk %s records", strings.ToLower(name)),
		History:     history,
	})
}

// FindOneByField scans the collection's bucket for the first record whose field equals value.
func (s *KVStore) FindOneByField(ctx context.Context, collection, field string, value any) (*Record, error) {
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return nil, err
	}

	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("list %s keys: %w", collection, err)
	}

	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			if isNotFound(err) {
				continue // Deleted between Keys and Get
			}
			return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
		}
		var fields Fields
		if err := json.Unmarshal(entry.Value(), &fields); err != nil {
			continue // Skip entries that fail to decode
		}
		if sameValue(fields[field], value) {
			return &Record{ID: key, Fields: fields}, nil
		}
	}

	return nil, ErrNotFound
}

// Insert creates a record under a new UUID.
func (s *KVStore) Insert(ctx context.Context, collection string, fields Fields) (string, error) {
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	stored := fields.Clone()
	stored[FieldID] = id

	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	if _, err := kv.Create(ctx, id, data); err != nil {
		return "", fmt.Errorf("store %s record: %w", collection, err)
	}
	return id, nil
}

// Update merges fields into the stored record. The write is an unconditional Put,
// so concurrent updates of one record are last-write-wins.
func (s *KVStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return err
	}

	entry, err := kv.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	var stored Fields
	if err := json.Unmarshal(entry.Value(), &stored); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	if stored == nil {
		stored = Fields{}
	}
	for k, v := range fields {
		stored[k] = v
	}
	stored[FieldID] = id

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if _, err := kv.Put(ctx, id, data); err != nil {
		return fmt.Errorf("update %s record: %w", collection, err)
	}
	return nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}
