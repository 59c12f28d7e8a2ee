package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360studio/newsdesk/llm"
	"github.com/c360studio/newsdesk/salvage"
)

const tracerName = "github.com/c360studio/newsdesk/news"

// Job outcomes.
const (
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Generator produces model output. *llm.Gateway implements it.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// SourceReader returns the text of a source page. *source.Reader implements it.
type SourceReader interface {
	Read(ctx context.Context, url, selector string) (string, error)
}

// Observer receives pipeline events. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveExtraction(kind Kind, stage salvage.Stage, items, rejected int)
	ObserveJob(kind Kind, outcome string)
}

// Job is one unit of work: one prompt, one model call, the articles it yields.
type Job struct {
	// Name identifies the job in logs and failures.
	Name string `yaml:"name" json:"name"`

	// Kind selects the schema. Defaults to KindNewsItem.
	Kind Kind `yaml:"kind" json:"kind"`

	// Topic is free text for the prompt.
	Topic string `yaml:"topic,omitempty" json:"topic,omitempty"`

	// SourceURL is read and handed to the prompt when set.
	SourceURL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Selector narrows the source page to one element.
	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`

	// ModelHint overrides the primary endpoint model.
	ModelHint string `yaml:"model_hint,omitempty" json:"model_hint,omitempty"`

	// WebSearch asks for a web-grounded answer.
	WebSearch bool `yaml:"web_search,omitempty" json:"web_search,omitempty"`

	// MaxItems caps the articles kept from this job. 0 uses the desk default.
	MaxItems int `yaml:"max_items,omitempty" json:"max_items,omitempty"`
}

// PromptInput is what a PromptFunc renders from.
type PromptInput struct {
	Job        Job
	SourceText string
	Now        time.Time
}

// PromptFunc renders the model request for a job.
type PromptFunc func(in PromptInput) (llm.Request, error)

// Desk runs jobs through generate, salvage and publish.
type Desk struct {
	gen         Generator
	publisher   *Publisher
	prompt      PromptFunc
	source      SourceReader
	limiter     *rate.Limiter
	concurrency int
	maxItems    int
	observer    Observer
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

// DeskOption configures a Desk.
type DeskOption func(*Desk)

// WithConcurrency runs up to n jobs at once. Values below 1 mean sequential.
func WithConcurrency(n int) DeskOption {
	return func(d *Desk) {
		d.concurrency = max(n, 1)
	}
}

// WithRateLimit allows at most perMinute model calls per minute.
// Zero or negative disables the limit.
func WithRateLimit(perMinute int) DeskOption {
	return func(d *Desk) {
		if perMinute <= 0 {
			d.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithSource sets the reader used for jobs that name a source URL.
func WithSource(r SourceReader) DeskOption {
	return func(d *Desk) {
		d.source = r
	}
}

// WithMaxItems caps the articles kept per job. Zero means no cap.
func WithMaxItems(n int) DeskOption {
	return func(d *Desk) {
		d.maxItems = n
	}
}

// WithDeskObserver sets the event observer.
func WithDeskObserver(o Observer) DeskOption {
	return func(d *Desk) {
		d.observer = o
	}
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) DeskOption {
	return func(d *Desk) {
		d.tracer = t
	}
}

// WithDeskLogger sets the logger.
func WithDeskLogger(logger *slog.Logger) DeskOption {
	return func(d *Desk) {
		d.logger = logger
	}
}

// WithDeskClock sets the time source handed to prompts.
func WithDeskClock(now func() time.Time) DeskOption {
	return func(d *Desk) {
		d.now = now
	}
}

// NewDesk creates a desk.
func NewDesk(gen Generator, publisher *Publisher, prompt PromptFunc, opts ...DeskOption) (*Desk, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if prompt == nil {
		return nil, errors.New("prompt function is required")
	}

	d := &Desk{
		gen:         gen,
		publisher:   publisher,
		prompt:      prompt,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		concurrency: 1,
		tracer:      otel.Tracer(tracerName),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run processes jobs and returns their combined summary. A failing job is
// counted and the batch moves on. The only error returned is
// llm.ErrNoProvidersConfigured, which stops the batch; jobs not yet started
// are then counted as cancelled.
func (d *Desk) Run(ctx context.Context, jobs []Job) (Summary, error) {
	var (
		mu    sync.Mutex
		total Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, job := range jobs {
		if job.Name == "" {
			job.Name = fmt.Sprintf("job-%d", i+1)
		}

		g.Go(func() error {
			var (
				s   Summary
				err error
			)
			if cerr := gctx.Err(); cerr != nil {
				s.fail(Failure{Job: job.Name, Stage: StageCancelled, Error: cerr.Error()})
			} else {
				s, err = d.RunJob(gctx, job)
			}

			mu.Lock()
			total.Merge(s)
			mu.Unlock()
			return err
		})
	}

	err := g.Wait()

	d.logger.Info("Batch finished",
		"jobs", len(jobs),
		"succeeded", total.Succeeded,
		"failed", total.Failed)

	return total, err
}

// RunJob processes one job. The error is non-nil only for
// llm.ErrNoProvidersConfigured.
func (d *Desk) RunJob(ctx context.Context, job Job) (Summary, error) {
	if job.Kind == "" {
		job.Kind = KindNewsItem
	}

	ctx, span := d.tracer.Start(ctx, "news.job", trace.WithAttributes(
		attribute.String("job.name", job.Name),
		attribute.String("job.kind", string(job.Kind)),
	))
	defer span.End()

	traceID := uuid.NewString()
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	ctx = llm.WithTraceContext(ctx, llm.TraceContext{TraceID: traceID})

	s, err := d.runJob(ctx, job)

	outcome := JobSucceeded
	if s.Succeeded == 0 {
		outcome = JobFailed
		span.SetStatus(codes.Error, "no articles stored")
	}
	span.SetAttributes(
		attribute.Int("job.succeeded", s.Succeeded),
		attribute.Int("job.failed", s.Failed),
	)
	if d.observer != nil {
		d.observer.ObserveJob(job.Kind, outcome)
	}

	d.logger.Info("Job finished",
		"job", job.Name,
		"kind", job.Kind,
		"trace_id", traceID,
		"succeeded", s.Succeeded,
		"failed", s.Failed)

	return s, err
}

func (d *Desk) runJob(ctx context.Context, job Job) (Summary, error) {
	var s Summary
	fail := func(stage string, err error) Summary {
		d.logger.Warn("Job failed", "job", job.Name, "stage", stage, "error", err)
		s.fail(Failure{Job: job.Name, Stage: stage, Error: err.Error()})
		return s
	}

	if !job.Kind.IsValid() {
		return fail(StagePrompt, fmt.Errorf("unknown article kind %q", job.Kind)), nil
	}

	var sourceText string
	if job.SourceURL != "" {
		err := d.traced(ctx, "news.source", func(ctx context.Context) error {
			if d.source == nil {
				return errors.New("no source reader configured")
			}
			var err error
			sourceText, err = d.source.Read(ctx, job.SourceURL, job.Selector)
			return err
		})
		if err != nil {
			return fail(StageSource, err), nil
		}
	}

	req, err := d.prompt(PromptInput{Job: job, SourceText: sourceText, Now: d.now()})
	if err != nil {
		return fail(StagePrompt, err), nil
	}
	if job.ModelHint != "" {
		req.ModelHint = job.ModelHint
	}
	if job.WebSearch {
		req.WebSearch = true
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return fail(StageRateLimit, err), nil
	}

	var resp *llm.Response
	err = d.traced(ctx, "news.generate", func(ctx context.Context) error {
		var err error
		resp, err = d.gen.Generate(ctx, req)
		return err
	})
	if err != nil {
		s = fail(StageGenerate, err)
		if errors.Is(err, llm.ErrNoProvidersConfigured) {
			return s, err
		}
		return s, nil
	}

	var ext Extraction
	err = d.traced(ctx, "news.extract", func(ctx context.Context) error {
		var err error
		ext, err = Extract(job.Kind, resp.Content, d.itemCap(job))
		if err != nil {
			return err
		}
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("salvage.stage", string(ext.Stage)),
			attribute.Int("salvage.items", len(ext.Articles)),
			attribute.Int("salvage.rejected", len(ext.Rejected)),
		)
		if len(ext.Articles) == 0 {
			return ErrNoItems
		}
		return nil
	})
	if err == nil || errors.Is(err, ErrNoItems) {
		d.observe(job.Kind, ext)
	}
	if err != nil {
		return fail(StageExtract, err), nil
	}

	for _, r := range ext.Rejected {
		d.logger.Debug("Dropped invalid item", "job", job.Name, "index", r.Index, "reason", r.Reason)
	}

	pubCtx, pubSpan := d.tracer.Start(ctx, "news.publish")
	published := d.publisher.Publish(pubCtx, ext.Articles, resp.RequestID)
	pubSpan.SetAttributes(
		attribute.Int("publish.succeeded", published.Succeeded),
		attribute.Int("publish.failed", published.Failed),
	)
	if published.Failed > 0 {
		pubSpan.SetStatus(codes.Error, fmt.Sprintf("%d of %d articles not stored", published.Failed, len(ext.Articles)))
	}
	pubSpan.End()
	s.Merge(published)
	for i := range s.Failures {
		if s.Failures[i].Job == "" {
			s.Failures[i].Job = job.Name
		}
	}

	return s, nil
}

func (d *Desk) observe(kind Kind, ext Extraction) {
	if d.observer != nil {
		d.observer.ObserveExtraction(kind, ext.Stage, len(ext.Articles), len(ext.Rejected))
	}
}

func (d *Desk) itemCap(job Job) int {
	if job.MaxItems > 0 {
		return job.MaxItems
	}
	return d.maxItems
}

// traced runs fn in a child span and records its error.
func (d *Desk) traced(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := d.tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
