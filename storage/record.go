// Package storage provides keyed record stores and the idempotent upsert built on them.
//
// A RecordStore is deliberately small: find one record by a field value, insert, and
// partial update. Backends exist for memory, NATS JetStream KV and Postgres.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Reserved field names maintained by the upserter.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// namePattern restricts collection and field names to something every backend can address.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Fields is the mutable content of a record.
type Fields map[string]any

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Record is a stored record with its store-assigned ID.
type Record struct {
	ID     string
	Fields Fields
}

// String returns a field rendered as a string, or "" if absent.
func (r *Record) String(field string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Time returns a timestamp field, accepting time.Time or RFC 3339 strings.
func (r *Record) Time(field string) time.Time {
	if r == nil || r.Fields == nil {
		return time.Time{}
	}
	switch v := r.Fields[field].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}

// RecordStore is the keyed record store the upserter persists through.
// Each method is a single round trip so callers can retry them individually.
// Errors that no retry can fix wrap ErrRejected or ErrInvalidCollection.
type RecordStore interface {
	// FindOneByField returns one record whose field equals value, or ErrNotFound.
	FindOneByField(ctx context.Context, collection, field string, value any) (*Record, error)

	// Insert stores a new record and returns its generated ID.
	Insert(ctx context.Context, collection string, fields Fields) (string, error)

	// Update merges fields into the record with the given ID.
	Update(ctx context.Context, collection, id string, fields Fields) error
}

// FieldsOf converts a JSON-tagged struct into Fields.
func FieldsOf(v any) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("value of type %T is not an object", v)
	}
	return f, nil
}

// ValidateName reports whether a collection or field name is addressable.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}

// sameValue compares a stored value with a lookup value.
// Values round-trip through JSON in most backends, so compare their renderings.
func sameValue(stored, want any) bool {
	if stored == nil || want == nil {
		return stored == want
	}
	return fmt.Sprint(stored) == fmt.Sprint(want)
}
