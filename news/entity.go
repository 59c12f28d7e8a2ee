package news

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"

	"github.com/c360studio/newsdesk/storage"
	"github.com/c360studio/newsdesk/vocabulary/newsdesk"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      ArticleType.Domain,
		Category:    ArticleType.Category,
		Version:     ArticleType.Version,
		Description: "Published article for graph ingestion",
		Factory:     func() any { return &ArticlePayload{} },
	})
	if err != nil {
		panic("failed to register ArticlePayload: " + err.Error())
	}
}

// ArticleType is the message type for article payloads.
var ArticleType = message.Type{Domain: "news", Category: "article", Version: "v1"}

// ArticleEntity describes a stored article as graph triples.
type ArticleEntity struct {
	Kind        Kind
	Title       string
	Fields      storage.Fields
	Result      storage.UpsertResult
	GeneratedBy string
	PublishedAt time.Time

	org     string
	project string
}

// EntityID returns the 6-part entity identifier.
// Format: {org}.newsdesk.news.{kind}.{project}.{slug}
func (e *ArticleEntity) EntityID() string {
	return fmt.Sprintf("%s.newsdesk.news.%s.%s.%s", e.org, e.Kind, e.project, e.Result.NaturalKey)
}

// Triples converts the article to graph triples.
func (e *ArticleEntity) Triples() []message.Triple {
	id := e.EntityID()

	triples := []message.Triple{
		{Subject: id, Predicate: newsdesk.ArticleKind, Object: string(e.Kind)},
		{Subject: id, Predicate: newsdesk.ArticleTitle, Object: e.Title},
		{Subject: id, Predicate: newsdesk.ArticleSlug, Object: e.Result.NaturalKey},
		{Subject: id, Predicate: newsdesk.ArticleRecord, Object: e.Result.ID},
		{Subject: id, Predicate: newsdesk.ArticleUpdated, Object: e.Result.WasUpdated},
	}

	if src, ok := e.Fields["source"].(string); ok && src != "" {
		triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.ArticleSource, Object: src})
	}
	if u, ok := e.Fields["url"].(string); ok && u != "" {
		triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.ArticleURL, Object: u})
	}
	if tags, ok := e.Fields["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok && s != "" {
				triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.ArticleTag, Object: s})
			}
		}
	}
	if e.GeneratedBy != "" {
		triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.ArticleGeneratedBy, Object: e.GeneratedBy})
	}

	return triples
}

// Payload wraps the entity for publishing.
func (e *ArticleEntity) Payload() *ArticlePayload {
	return &ArticlePayload{
		ID:         e.EntityID(),
		TripleData: e.Triples(),
		UpdatedAt:  e.PublishedAt,
	}
}

// ArticlePayload carries article triples to the graph. It implements message.Payload.
type ArticlePayload struct {
	ID         string           `json:"id"`
	TripleData []message.Triple `json:"triples"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// EntityID returns the entity identifier.
func (p *ArticlePayload) EntityID() string { return p.ID }

// Triples returns the graph triples for this entity.
func (p *ArticlePayload) Triples() []message.Triple { return p.TripleData }

// Schema returns the message type.
func (p *ArticlePayload) Schema() message.Type { return ArticleType }

// Validate requires an ID and at least one triple.
func (p *ArticlePayload) Validate() error {
	if p.ID == "" {
		return errors.New("entity ID is required")
	}
	if len(p.TripleData) == 0 {
		return errors.New("at least one triple is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler for the Payload interface.
func (p *ArticlePayload) MarshalJSON() ([]byte, error) {
	type alias ArticlePayload
	return json.Marshal((*alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler for the Payload interface.
func (p *ArticlePayload) UnmarshalJSON(data []byte) error {
	type alias ArticlePayload
	return json.Unmarshal(data, (*alias)(p))
}
