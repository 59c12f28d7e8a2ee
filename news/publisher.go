package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semstreams/message"

	"github.com/c360studio/newsdesk/llm"
	"github.com/c360studio/newsdesk/storage"
)

// Failure stages.
const (
	StageSource    = "source"
	StagePrompt    = "prompt"
	StageRateLimit = "rate_limit"
	StageGenerate  = "generate"
	StageExtract   = "extract"
	StageUpsert    = "upsert"
	StageCancelled = "cancelled"
)

// Failure describes one job or item that did not make it into the store.
type Failure struct {
	Job   string `json:"job,omitempty"`
	Key   string `json:"key,omitempty"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Summary counts a publishing run. It never carries an error: failures are
// listed and counted.
type Summary struct {
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Results   []storage.UpsertResult `json:"results,omitempty"`
	Failures  []Failure              `json:"failures,omitempty"`
}

func (s *Summary) fail(f Failure) {
	s.Failed++
	s.Failures = append(s.Failures, f)
}

// Merge adds other's counts and lists to s.
func (s *Summary) Merge(other Summary) {
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Results = append(s.Results, other.Results...)
	s.Failures = append(s.Failures, other.Failures...)
}

// Publisher upserts articles by the slug of their title.
type Publisher struct {
	store       storage.RecordStore
	collections map[Kind]string
	upsertOpts  []storage.UpserterOption
	upserters   map[Kind]*storage.Upserter
	graph       llm.GraphPublisher
	org         string
	project     string
	logger      *slog.Logger
	now         func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithCollection stores articles of kind in the named collection.
func WithCollection(kind Kind, collection string) PublisherOption {
	return func(p *Publisher) {
		if collection != "" {
			p.collections[kind] = collection
		}
	}
}

// WithUpsertOptions passes options to every upserter.
func WithUpsertOptions(opts ...storage.UpserterOption) PublisherOption {
	return func(p *Publisher) {
		p.upsertOpts = append(p.upsertOpts, opts...)
	}
}

// WithGraph also publishes each stored article to the knowledge graph.
// Graph failures are logged and do not count against the article.
func WithGraph(pub llm.GraphPublisher, org, project string) PublisherOption {
	return func(p *Publisher) {
		p.graph = pub
		if org != "" {
			p.org = org
		}
		if project != "" {
			p.project = project
		}
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher writing to store.
func NewPublisher(store storage.RecordStore, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store: store,
		collections: map[Kind]string{
			KindNewsItem: KindNewsItem.DefaultCollection(),
			KindTutorial: KindTutorial.DefaultCollection(),
		},
		org:     "local",
		project: "newsdesk",
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.upserters = make(map[Kind]*storage.Upserter, len(p.collections))
	for kind, collection := range p.collections {
		uopts := append([]storage.UpserterOption{storage.WithLogger(p.logger)}, p.upsertOpts...)
		p.upserters[kind] = storage.NewUpserter(store, collection, uopts...)
	}
	return p
}

// Collection returns the collection articles of kind are stored in.
func (p *Publisher) Collection(kind Kind) string {
	return p.collections[kind]
}

// Publish upserts each article. One article failing never stops the rest.
// generatedBy, when set, is the request ID of the model call that wrote them.
func (p *Publisher) Publish(ctx context.Context, articles []Article, generatedBy string) Summary {
	var s Summary

	for _, a := range articles {
		key := storage.Slugify(a.Headline())
		if key == "" {
			s.fail(Failure{Stage: StageUpsert, Error: fmt.Sprintf("title %q has no usable characters", a.Headline())})
			continue
		}

		res, fields, err := p.upsert(ctx, key, a)
		if err != nil {
			p.logger.Warn("Article upsert failed", "key", key, "kind", a.Kind(), "error", err)
			s.fail(Failure{Key: key, Stage: StageUpsert, Error: err.Error()})
			continue
		}

		s.Succeeded++
		s.Results = append(s.Results, res)

		if p.graph != nil {
			p.publishGraph(ctx, a, fields, res, generatedBy)
		}
	}

	return s
}

func (p *Publisher) upsert(ctx context.Context, key string, a Article) (storage.UpsertResult, storage.Fields, error) {
	u, ok := p.upserters[a.Kind()]
	if !ok {
		return storage.UpsertResult{}, nil, fmt.Errorf("unknown article kind %q", a.Kind())
	}

	fields, err := storage.FieldsOf(a)
	if err != nil {
		return storage.UpsertResult{}, nil, err
	}
	fields["kind"] = string(a.Kind())

	res, err := u.Upsert(ctx, key, fields)
	return res, fields, err
}

func (p *Publisher) publishGraph(ctx context.Context, a Article, fields storage.Fields, res storage.UpsertResult, generatedBy string) {
	entity := &ArticleEntity{
		Kind:        a.Kind(),
		Title:       a.Headline(),
		Fields:      fields,
		Result:      res,
		PublishedAt: p.now(),
		org:         p.org,
		project:     p.project,
	}
	if generatedBy != "" {
		entity.GeneratedBy = llm.NewCallEntity(&llm.CallRecord{RequestID: generatedBy}, p.org, p.project).EntityID()
	}

	payload := entity.Payload()
	if err := payload.Validate(); err != nil {
		p.logger.Warn("Invalid article entity", "key", res.NaturalKey, "error", err)
		return
	}

	data, err := json.Marshal(message.NewBaseMessage(ArticleType, payload, "newsdesk"))
	if err != nil {
		p.logger.Warn("Failed to marshal article entity", "key", res.NaturalKey, "error", err)
		return
	}

	if err := p.graph.Publish(ctx, llm.GraphIngestSubject, data); err != nil {
		p.logger.Warn("Failed to publish article to graph", "key", res.NaturalKey, "error", err)
		return
	}

	p.logger.Debug("Published article to graph", "entity_id", entity.EntityID())
}
