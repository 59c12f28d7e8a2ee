package storage_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/newsdesk/retry"
	"github.com/c360studio/newsdesk/storage"
)

var errFlaky = errors.New("connection reset by peer")

// flakyStore fails the first N calls of each method before delegating.
type flakyStore struct {
	storage.RecordStore

	mu          sync.Mutex
	findFails   int
	insertFails int
	updateFails int
	failErr     error
	calls       map[string]int
}

func newFlakyStore(inner storage.RecordStore) *flakyStore {
	return &flakyStore{RecordStore: inner, calls: make(map[string]int)}
}

func (f *flakyStore) fail(method string, budget *int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if *budget > 0 {
		*budget--
		return true
	}
	return false
}

func (f *flakyStore) FindOneByField(ctx context.Context, collection, field string, value any) (*storage.Record, error) {
	if f.fail("find", &f.findFails) {
		return nil, f.failure()
	}
	return f.RecordStore.FindOneByField(ctx, collection, field, value)
}

func (f *flakyStore) Insert(ctx context.Context, collection string, fields storage.Fields) (string, error) {
	if f.fail("insert", &f.insertFails) {
		return "", f.failure()
	}
	return f.RecordStore.Insert(ctx, collection, fields)
}

func (f *flakyStore) Update(ctx context.Context, collection, id string, fields storage.Fields) error {
	if f.fail("update", &f.updateFails) {
		return f.failure()
	}
	return f.RecordStore.Update(ctx, collection, id, fields)
}

func (f *flakyStore) failure() error {
	if f.failErr != nil {
		return f.failErr
	}
	return errFlaky
}

func (f *flakyStore) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeRecorder) ObserveUpsert(_, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestUpserter_IdempotentByNaturalKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	u := storage.NewUpserter(store, "news_items", storage.WithRetryConfig(fastRetry()))

	first, err := u.Upsert(ctx, "x", storage.Fields{"title": "X", "summary": "first"})
	require.NoError(t, err)
	assert.False(t, first.WasUpdated)
	assert.Equal(t, "x", first.NaturalKey)

	second, err := u.Upsert(ctx, "x", storage.Fields{"title": "X", "summary": "second"})
	require.NoError(t, err)
	assert.True(t, second.WasUpdated)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, 1, store.Count("news_items"))

	rec, err := store.Get(ctx, "news_items", first.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", rec.String("summary"))
	assert.Equal(t, "x", rec.String("slug"))
}

func TestUpserter_PreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := storage.NewUpserter(store, "news_items",
		storage.WithRetryConfig(fastRetry()),
		storage.WithClock(func() time.Time { return clock }))

	res, err := u.Upsert(ctx, "launch", storage.Fields{"title": "Launch"})
	require.NoError(t, err)

	created := clock
	clock = clock.Add(time.Hour)

	_, err = u.Upsert(ctx, "launch", storage.Fields{
		"title":      "Launch v2",
		"created_at": time.Unix(0, 0),
		"slug":       "something-else",
		"id":         "forged",
	})
	require.NoError(t, err)

	rec, err := store.Get(ctx, "news_items", res.ID)
	require.NoError(t, err)
	assert.Equal(t, created, rec.Time("created_at"))
	assert.Equal(t, clock, rec.Time("updated_at"))
	assert.Equal(t, "launch", rec.String("slug"))
	assert.Equal(t, res.ID, rec.ID)
	assert.Equal(t, "Launch v2", rec.String("title"))
}

func TestUpserter_CustomUniqueAndImmutableFields(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	u := storage.NewUpserter(store, "tutorials",
		storage.WithUniqueField("url"),
		storage.WithImmutableFields("author"),
		storage.WithRetryConfig(fastRetry()))

	assert.Equal(t, "url", u.UniqueField())
	assert.Equal(t, "tutorials", u.Collection())

	res, err := u.Upsert(ctx, "https://example.com/a", storage.Fields{"author": "kim", "title": "A"})
	require.NoError(t, err)

	_, err = u.Upsert(ctx, "https://example.com/a", storage.Fields{"author": "lee", "title": "B"})
	require.NoError(t, err)

	rec, err := store.Get(ctx, "tutorials", res.ID)
	require.NoError(t, err)
	assert.Equal(t, "kim", rec.String("author"))
	assert.Equal(t, "B", rec.String("title"))
}

func TestUpserter_RetriesEachStep(t *testing.T) {
	tests := []struct {
		name        string
		existing    bool
		findFails   int
		insertFails int
		updateFails int
		wantErr     bool
		wantCalls   map[string]int
		wantRecords int
	}{
		{
			name:        "transient find then insert",
			findFails:   2,
			wantCalls:   map[string]int{"find": 3, "insert": 1},
			wantRecords: 1,
		},
		{
			name:        "transient insert",
			insertFails: 1,
			wantCalls:   map[string]int{"find": 1, "insert": 2},
			wantRecords: 1,
		},
		{
			name:        "transient update",
			existing:    true,
			updateFails: 2,
			wantCalls:   map[string]int{"find": 1, "update": 3},
			wantRecords: 1,
		},
		{
			name:      "find exhausted",
			findFails: 3,
			wantErr:   true,
			wantCalls: map[string]int{"find": 3},
		},
		{
			name:        "insert exhausted",
			insertFails: 5,
			wantErr:     true,
			wantCalls:   map[string]int{"find": 1, "insert": 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := storage.NewMemoryStore()
			if tt.existing {
				_, err := mem.Insert(ctx, "news_items", storage.Fields{"slug": "k"})
				require.NoError(t, err)
			}

			flaky := newFlakyStore(mem)
			flaky.findFails = tt.findFails
			flaky.insertFails = tt.insertFails
			flaky.updateFails = tt.updateFails

			u := storage.NewUpserter(flaky, "news_items", storage.WithRetryConfig(fastRetry()))
			res, err := u.Upsert(ctx, "k", storage.Fields{"title": "K"})

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errFlaky)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.existing, res.WasUpdated)
			}
			for method, want := range tt.wantCalls {
				assert.Equal(t, want, flaky.count(method), method)
			}
			assert.Equal(t, tt.wantRecords, mem.Count("news_items"))
		})
	}
}

func TestUpserter_RejectedErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name        string
		findFails   int
		insertFails int
		err         error
		wantCalls   map[string]int
	}{
		{
			name:      "rejected find",
			findFails: 5,
			err:       fmt.Errorf("%w: decode news_items/1: bad json", storage.ErrRejected),
			wantCalls: map[string]int{"find": 1},
		},
		{
			name:        "rejected insert",
			insertFails: 5,
			err:         fmt.Errorf("%w: unique violation", storage.ErrRejected),
			wantCalls:   map[string]int{"find": 1, "insert": 1},
		},
		{
			name:      "invalid collection",
			findFails: 5,
			err:       fmt.Errorf("%w: %q", storage.ErrInvalidCollection, "Bad Name"),
			wantCalls: map[string]int{"find": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaky := newFlakyStore(storage.NewMemoryStore())
			flaky.findFails = tt.findFails
			flaky.insertFails = tt.insertFails
			flaky.failErr = tt.err

			u := storage.NewUpserter(flaky, "news_items", storage.WithRetryConfig(fastRetry()))
			_, err := u.Upsert(context.Background(), "k", storage.Fields{"title": "K"})

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			for method, want := range tt.wantCalls {
				assert.Equal(t, want, flaky.count(method), method)
			}
		})
	}
}

func TestUpserter_ObservesOutcomes(t *testing.T) {
	ctx := context.Background()
	obs := &outcomeRecorder{}

	flaky := newFlakyStore(storage.NewMemoryStore())
	u := storage.NewUpserter(flaky, "news_items",
		storage.WithRetryConfig(retry.Config{MaxAttempts: 1}),
		storage.WithObserver(obs))

	_, err := u.Upsert(ctx, "a", storage.Fields{})
	require.NoError(t, err)
	_, err = u.Upsert(ctx, "a", storage.Fields{})
	require.NoError(t, err)

	flaky.findFails = 1
	_, err = u.Upsert(ctx, "a", storage.Fields{})
	require.Error(t, err)

	assert.Equal(t, []string{
		storage.OutcomeInserted,
		storage.OutcomeUpdated,
		storage.OutcomeFailed,
	}, obs.outcomes)
}

func TestUpserter_RejectsEmptyKey(t *testing.T) {
	u := storage.NewUpserter(storage.NewMemoryStore(), "news_items")
	_, err := u.Upsert(context.Background(), "", storage.Fields{"title": "x"})
	assert.Error(t, err)
}

func TestUpserter_ConcurrentDistinctKeys(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	u := storage.NewUpserter(store, "news_items", storage.WithRetryConfig(fastRetry()))

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			_, err := u.Upsert(ctx, k, storage.Fields{"title": k})
			assert.NoError(t, err)
		}(k)
	}
	wg.Wait()

	assert.Equal(t, len(keys), store.Count("news_items"))
}
