package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process RecordStore. Lookups scan records in insertion order.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	order   []string
	records map[string]Fields
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// FindOneByField returns the first inserted record whose field equals value.
func (s *MemoryStore) FindOneByField(ctx context.Context, collection, field string, value any) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	for _, id := range c.order {
		fields := c.records[id]
		if sameValue(fields[field], value) {
			return &Record{ID: id, Fields: fields.Clone()}, nil
		}
	}
	return nil, ErrNotFound
}

// Insert stores a copy of fields under a new UUID.
func (s *MemoryStore) Insert(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		c = &memoryCollection{records: make(map[string]Fields)}
		s.collections[collection] = c
	}

	id := uuid.New().String()
	stored := fields.Clone()
	stored[FieldID] = id
	c.records[id] = stored
	c.order = append(c.order, id)
	return id, nil
}

// Update merges fields into an existing record.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return ErrNotFound
	}
	stored, ok := c.records[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		stored[k] = v
	}
	stored[FieldID] = id
	return nil
}

// Get returns a record by ID.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	fields, ok := c.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Record{ID: id, Fields: fields.Clone()}, nil
}

// Count returns the number of records in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[collection]; ok {
		return len(c.records)
	}
	return 0
}
