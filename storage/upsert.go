package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/newsdesk/retry"
)

// DefaultUniqueField is the natural-key field used when none is configured.
const DefaultUniqueField = "slug"

// Upsert outcomes reported to an UpsertObserver.
const (
	OutcomeInserted = "inserted"
	OutcomeUpdated  = "updated"
	OutcomeFailed   = "failed"
)

// UpsertResult reports what one upsert did.
type UpsertResult struct {
	ID         string `json:"id"`
	NaturalKey string `json:"natural_key"`
	WasUpdated bool   `json:"was_updated"`
}

// UpsertObserver receives one outcome per Upsert call.
type UpsertObserver interface {
	ObserveUpsert(collection, outcome string)
}

// Upserter persists records keyed by a natural key so repeated writes of the
// same key converge on one record. It holds no per-key state.
//
// Same-key upserts are not serialized: two concurrent first writes can both
// insert, and concurrent updates are last-write-wins at the store.
type Upserter struct {
	store       RecordStore
	collection  string
	uniqueField string
	immutable   map[string]struct{}
	retry       retry.Config
	now         func() time.Time
	logger      *slog.Logger
	observer    UpsertObserver
}

// UpserterOption configures an Upserter.
type UpserterOption func(*Upserter)

// WithUniqueField sets the natural-key field.
func WithUniqueField(field string) UpserterOption {
	return func(u *Upserter) {
		u.uniqueField = field
	}
}

// WithImmutableFields adds fields that updates never overwrite.
func WithImmutableFields(fields ...string) UpserterOption {
	return func(u *Upserter) {
		for _, f := range fields {
			u.immutable[f] = struct{}{}
		}
	}
}

// WithRetryConfig sets the retry policy applied to each store call.
func WithRetryConfig(cfg retry.Config) UpserterOption {
	return func(u *Upserter) {
		u.retry = cfg
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) UpserterOption {
	return func(u *Upserter) {
		u.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) UpserterOption {
	return func(u *Upserter) {
		u.logger = logger
	}
}

// WithObserver sets the outcome observer, typically Prometheus metrics.
func WithObserver(o UpsertObserver) UpserterOption {
	return func(u *Upserter) {
		u.observer = o
	}
}

// NewUpserter creates an upserter writing to one collection of store.
func NewUpserter(store RecordStore, collection string, opts ...UpserterOption) *Upserter {
	u := &Upserter{
		store:       store,
		collection:  collection,
		uniqueField: DefaultUniqueField,
		immutable:   map[string]struct{}{FieldID: {}, FieldCreatedAt: {}},
		retry:       retry.DefaultConfig(),
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Collection returns the target collection.
func (u *Upserter) Collection() string {
	return u.collection
}

// UniqueField returns the natural-key field.
func (u *Upserter) UniqueField() string {
	return u.uniqueField
}

// Upsert updates the record whose unique field equals naturalKey, or inserts one.
// Timestamps are assigned here; created_at survives updates.
func (u *Upserter) Upsert(ctx context.Context, naturalKey string, fields Fields) (UpsertResult, error) {
	result, err := u.upsert(ctx, naturalKey, fields)
	outcome := OutcomeInserted
	switch {
	case err != nil:
		outcome = OutcomeFailed
	case result.WasUpdated:
		outcome = OutcomeUpdated
	}
	if u.observer != nil {
		u.observer.ObserveUpsert(u.collection, outcome)
	}
	return result, err
}

func (u *Upserter) upsert(ctx context.Context, naturalKey string, fields Fields) (UpsertResult, error) {
	if naturalKey == "" {
		return UpsertResult{}, fmt.Errorf("upsert %s: empty %s", u.collection, u.uniqueField)
	}

	cfg := u.retryConfig(naturalKey)

	existing, err := retry.Do(ctx, cfg, func(ctx context.Context) (*Record, error) {
		rec, err := u.store.FindOneByField(ctx, u.collection, u.uniqueField, naturalKey)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return rec, permanentOrRetry(err)
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("find %s by %s: %w", u.collection, u.uniqueField, err)
	}

	now := u.now().UTC()

	if existing != nil {
		changes := make(Fields, len(fields)+1)
		for k, v := range fields {
			if u.isImmutable(k) {
				continue
			}
			changes[k] = v
		}
		changes[FieldUpdatedAt] = now

		err := retry.Run(ctx, cfg, func(ctx context.Context) error {
			err := u.store.Update(ctx, u.collection, existing.ID, changes)
			if errors.Is(err, ErrNotFound) {
				return retry.Permanent(err)
			}
			return permanentOrRetry(err)
		})
		if err != nil {
			return UpsertResult{}, fmt.Errorf("update %s %s: %w", u.collection, existing.ID, err)
		}

		u.logger.Debug("Updated record",
			"collection", u.collection,
			"key", naturalKey,
			"id", existing.ID)

		return UpsertResult{ID: existing.ID, NaturalKey: naturalKey, WasUpdated: true}, nil
	}

	record := make(Fields, len(fields)+3)
	for k, v := range fields {
		if k == FieldID {
			continue
		}
		record[k] = v
	}
	record[u.uniqueField] = naturalKey
	record[FieldCreatedAt] = now
	record[FieldUpdatedAt] = now

	id, err := retry.Do(ctx, cfg, func(ctx context.Context) (string, error) {
		id, err := u.store.Insert(ctx, u.collection, record)
		return id, permanentOrRetry(err)
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("insert %s: %w", u.collection, err)
	}

	u.logger.Debug("Inserted record",
		"collection", u.collection,
		"key", naturalKey,
		"id", id)

	return UpsertResult{ID: id, NaturalKey: naturalKey, WasUpdated: false}, nil
}

func (u *Upserter) isImmutable(field string) bool {
	if field == u.uniqueField {
		return true
	}
	_, ok := u.immutable[field]
	return ok
}

// permanentOrRetry stops the retry loop for errors no later attempt can fix.
func permanentOrRetry(err error) error {
	if err != nil && isPermanent(err) {
		return retry.Permanent(err)
	}
	return err
}

func (u *Upserter) retryConfig(key string) retry.Config {
	cfg := u.retry
	hook := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		u.logger.Debug("Retrying store call",
			"collection", u.collection,
			"key", key,
			"attempt", attempt,
			"delay", delay,
			"error", err)
		if hook != nil {
			hook(attempt, err, delay)
		}
	}
	return cfg
}
