// Package news turns model output into stored news items and tutorials.
//
// A Desk runs jobs: it reads an optional source page, renders a prompt, calls
// the gateway, salvages items from the reply, and hands them to a Publisher
// that upserts each one by the slug of its title.
package news

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/c360studio/newsdesk/salvage"
)

// Kind names an article type. It doubles as the vocabulary value for
// the article kind predicate.
type Kind string

const (
	KindNewsItem Kind = "news_item"
	KindTutorial Kind = "tutorial"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindNewsItem || k == KindTutorial
}

// DefaultCollection returns the store collection for a kind.
func (k Kind) DefaultCollection() string {
	switch k {
	case KindTutorial:
		return "tutorials"
	default:
		return "news_items"
	}
}

// Article is anything the publisher can store.
type Article interface {
	Kind() Kind
	Headline() string
	Topics() []string
}

// Item is a single news item.
type Item struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Content     string   `json:"content,omitempty"`
	Source      string   `json:"source,omitempty"`
	URL         string   `json:"url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`
}

func (i Item) Kind() Kind { return KindNewsItem }
func (i Item) Headline() string { return i.Title }
func (i Item) Topics() []string { return i.Tags }

// Tutorial is a how-to article.
type Tutorial struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Body       string   `json:"body"`
	Difficulty string   `json:"difficulty,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func (t Tutorial) Kind() Kind { return KindTutorial }
func (t Tutorial) Headline() string { return t.Title }
func (t Tutorial) Topics() []string { return t.Tags }

// Difficulties are the accepted tutorial difficulty levels.
var Difficulties = []string{"beginner", "intermediate", "advanced"}

// publishedLayouts are the accepted published_at formats.
var publishedLayouts = []string{time.RFC3339, "2006-01-02"}

// ItemSchema validates news items under the "items" array.
var ItemSchema = salvage.Schema[Item]{
	ArrayField: "items",
	Fields: []salvage.Field{
		{Name: "title", Kind: salvage.KindString, Required: true},
		{Name: "summary", Kind: salvage.KindString, Required: true},
		{Name: "content", Kind: salvage.KindString},
		{Name: "source", Kind: salvage.KindString},
		{Name: "url", Kind: salvage.KindString},
		{Name: "tags", Kind: salvage.KindArray},
		{Name: "published_at", Kind: salvage.KindString},
	},
	Check: checkItem,
}

// TutorialSchema validates tutorials under the "tutorials" array.
var TutorialSchema = salvage.Schema[Tutorial]{
	ArrayField: "tutorials",
	Fields: []salvage.Field{
		{Name: "title", Kind: salvage.KindString, Required: true},
		{Name: "summary", Kind: salvage.KindString, Required: true},
		{Name: "body", Kind: salvage.KindString, Required: true},
		{Name: "difficulty", Kind: salvage.KindString},
		{Name: "tags", Kind: salvage.KindArray},
	},
	Check: checkTutorial,
}

func checkItem(item Item) error {
	if item.PublishedAt == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		if _, err := time.Parse(layout, item.PublishedAt); err == nil {
			return nil
		}
	}
	return fmt.Errorf("published_at %q is not a date", item.PublishedAt)
}

func checkTutorial(t Tutorial) error {
	if t.Difficulty == "" {
		return nil
	}
	if !slices.Contains(Difficulties, strings.ToLower(t.Difficulty)) {
		return fmt.Errorf("difficulty %q is not one of %s", t.Difficulty, strings.Join(Difficulties, ", "))
	}
	return nil
}

// ErrNoItems means salvage produced nothing to publish.
var ErrNoItems = errors.New("no valid items in model output")

// Extraction is the outcome of salvaging one model reply.
type Extraction struct {
	Articles []Article
	Stage    salvage.Stage
	Rejected []salvage.Rejection
}

// Extract salvages articles of the given kind from raw model output.
func Extract(kind Kind, raw string, maxItems int) (Extraction, error) {
	switch kind {
	case KindNewsItem:
		res := salvage.Extract(raw, ItemSchema, maxItems)
		return Extraction{Articles: toArticles(res.Items), Stage: res.Stage, Rejected: res.Rejected}, nil
	case KindTutorial:
		res := salvage.Extract(raw, TutorialSchema, maxItems)
		return Extraction{Articles: toArticles(res.Items), Stage: res.Stage, Rejected: res.Rejected}, nil
	default:
		return Extraction{}, fmt.Errorf("unknown article kind %q", kind)
	}
}

func toArticles[T Article](items []T) []Article {
	out := make([]Article, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
