//go:build integration

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/semstreams/natsclient"
)

func newTestKVStore(t *testing.T) *KVStore {
	t.Helper()
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())

	js, err := tc.Client.JetStream()
	if err != nil {
		t.Fatalf("JetStream() error = %v", err)
	}
	return NewKVStore(js, WithBucketPrefix("TEST"))
}

func TestKVStore_InsertFindUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestKVStore(t)

	if _, err := s.FindOneByField(ctx, "news_items", "slug", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindOneByField on empty bucket = %v, want ErrNotFound", err)
	}

	id, err := s.Insert(ctx, "news_items", Fields{"slug": "a", "title": "A"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	rec, err := s.FindOneByField(ctx, "news_items", "slug", "a")
	if err != nil {
		t.Fatalf("FindOneByField() error = %v", err)
	}
	if rec.ID != id {
		t.Errorf("ID = %q, want %q", rec.ID, id)
	}

	if err := s.Update(ctx, "news_items", id, Fields{"title": "A2"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rec, err = s.FindOneByField(ctx, "news_items", "slug", "a")
	if err != nil {
		t.Fatalf("FindOneByField() after update error = %v", err)
	}
	if rec.String("title") != "A2" {
		t.Errorf("title = %q, want A2", rec.String("title"))
	}
	if rec.String("slug") != "a" {
		t.Errorf("slug = %q, want a", rec.String("slug"))
	}
}

func TestKVStore_UpdateMissing(t *testing.T) {
	s := newTestKVStore(t)

	err := s.Update(context.Background(), "news_items", "nope", Fields{"x": 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) = %v, want ErrNotFound", err)
	}
}

func TestKVStore_UpserterRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestKVStore(t)
	u := NewUpserter(s, "tutorials")

	first, err := u.Upsert(ctx, "intro-to-go", Fields{"title": "Intro"})
	if err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	second, err := u.Upsert(ctx, "intro-to-go", Fields{"title": "Intro, revised"})
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	if first.WasUpdated || !second.WasUpdated {
		t.Errorf("WasUpdated = %v, %v; want false, true", first.WasUpdated, second.WasUpdated)
	}
	if first.ID != second.ID {
		t.Errorf("IDs differ: %q vs %q", first.ID, second.ID)
	}

	rec, err := s.FindOneByField(ctx, "tutorials", "slug", "intro-to-go")
	if err != nil {
		t.Fatalf("FindOneByField() error = %v", err)
	}
	if rec.Time(FieldCreatedAt).IsZero() {
		t.Error("created_at not preserved through JSON round trip")
	}
}
