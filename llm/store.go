package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/newsdesk/model"
)

// GraphIngestSubject is the NATS subject for graph entity ingestion.
const GraphIngestSubject = "graph.ingest.entity"

// CallRecord describes one gateway call with the outcome of every slot tried.
type CallRecord struct {
	// RequestID uniquely identifies this gateway call.
	RequestID string `json:"request_id"`

	// TraceID correlates calls made for the same job.
	TraceID string `json:"trace_id,omitempty"`

	// Slot is the slot that produced the response. Empty if every slot failed.
	Slot model.Slot `json:"slot,omitempty"`

	// Provider is the backend that produced the response.
	Provider string `json:"provider,omitempty"`

	// Model is the model reported by the provider.
	Model string `json:"model,omitempty"`

	// ModelHint is the requested primary model override.
	ModelHint string `json:"model_hint,omitempty"`

	// Status is the final completion status.
	Status CompletionStatus `json:"status"`

	// PollAttempts is the number of status fetches made.
	PollAttempts int `json:"poll_attempts,omitempty"`

	// Response is the generated content.
	Response string `json:"response,omitempty"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	// FinishReason indicates why generation stopped.
	FinishReason string `json:"finish_reason,omitempty"`

	// SlotErrors holds the error captured from each slot that failed or was skipped.
	SlotErrors map[model.Slot]string `json:"slot_errors,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`

	// Error contains the final error message if the call failed.
	Error string `json:"error,omitempty"`
}

// CallRecorder persists call records. Failures never affect the call itself.
type CallRecorder interface {
	Store(ctx context.Context, record *CallRecord) error
}

// GraphPublisher publishes raw entity messages to a subject.
type GraphPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// JetStreamPublisher publishes through a semstreams NATS client's JetStream context.
type JetStreamPublisher struct {
	nc *natsclient.Client
}

// NewJetStreamPublisher wraps a connected client.
func NewJetStreamPublisher(nc *natsclient.Client) *JetStreamPublisher {
	return &JetStreamPublisher{nc: nc}
}

// Publish sends data with JetStream acknowledgement.
func (p *JetStreamPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	js, err := p.nc.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// CallStore publishes call records to the knowledge graph.
type CallStore struct {
	pub     GraphPublisher
	logger  *slog.Logger
	org     string
	project string
}

// CallStoreOption configures a CallStore.
type CallStoreOption func(*CallStore)

// WithOrg sets the organization for entity ID generation.
func WithOrg(org string) CallStoreOption {
	return func(s *CallStore) {
		s.org = org
	}
}

// WithProject sets the project name for entity ID generation.
func WithProject(project string) CallStoreOption {
	return func(s *CallStore) {
		s.project = project
	}
}

// WithStoreLogger sets the logger for the call store.
func WithStoreLogger(logger *slog.Logger) CallStoreOption {
	return func(s *CallStore) {
		s.logger = logger
	}
}

// NewCallStore creates a call store publishing through pub.
func NewCallStore(pub GraphPublisher, opts ...CallStoreOption) (*CallStore, error) {
	if pub == nil {
		return nil, fmt.Errorf("graph publisher required")
	}

	s := &CallStore{
		pub:     pub,
		logger:  slog.Default(),
		org:     "local",
		project: "newsdesk",
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// EntityID returns the graph entity ID a record is published under.
func (s *CallStore) EntityID(record *CallRecord) string {
	return NewCallEntity(record, s.org, s.project).EntityID()
}

// Store publishes a call record to the knowledge graph.
func (s *CallStore) Store(ctx context.Context, record *CallRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if record.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}

	entity := NewCallEntity(record, s.org, s.project)
	payload := entity.Payload()
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid call entity: %w", err)
	}

	msg := message.NewBaseMessage(CallType, payload, "newsdesk")
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	if err := s.pub.Publish(ctx, GraphIngestSubject, data); err != nil {
		return fmt.Errorf("publish to graph: %w", err)
	}

	s.logger.Debug("Published model call to graph",
		"entity_id", entity.EntityID(),
		"request_id", record.RequestID,
		"trace_id", record.TraceID,
		"slot", record.Slot)

	return nil
}

// TraceContext holds trace information carried in a context.
type TraceContext struct {
	TraceID string
}

// traceContextKey is the context key for trace information.
type traceContextKey struct{}

// WithTraceContext adds trace information to a context.
func WithTraceContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTraceContext extracts trace information from a context.
func GetTraceContext(ctx context.Context) TraceContext {
	if tc, ok := ctx.Value(traceContextKey{}).(TraceContext); ok {
		return tc
	}
	return TraceContext{}
}
