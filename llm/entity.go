package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"

	"github.com/c360studio/newsdesk/model"
	"github.com/c360studio/newsdesk/vocabulary/newsdesk"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      CallType.Domain,
		Category:    CallType.Category,
		Version:     CallType.Version,
		Description: "Gateway call record for graph ingestion",
		Factory:     func() any { return &CallPayload{} },
	})
	if err != nil {
		panic("failed to register CallPayload: " + err.Error())
	}
}

// CallType is the message type for model call payloads.
var CallType = message.Type{Domain: "llm", Category: "call", Version: "v1"}

// responsePreviewMaxLen is the maximum length of the response preview stored in graph.
const responsePreviewMaxLen = 500

// CallEntity converts a CallRecord to graph triples.
type CallEntity struct {
	record  *CallRecord
	org     string
	project string
}

// NewCallEntity creates an entity from a CallRecord.
func NewCallEntity(record *CallRecord, org, project string) *CallEntity {
	return &CallEntity{record: record, org: org, project: project}
}

// EntityID returns the 6-part entity identifier.
// Format: {org}.newsdesk.llm.call.{project}.{request_id}
func (e *CallEntity) EntityID() string {
	return fmt.Sprintf("%s.newsdesk.llm.call.%s.%s", e.org, e.project, e.record.RequestID)
}

// Triples converts the CallRecord to graph triples.
func (e *CallEntity) Triples() []message.Triple {
	id := e.EntityID()
	r := e.record

	triples := []message.Triple{
		{Subject: id, Predicate: newsdesk.CallRequestID, Object: r.RequestID},
		{Subject: id, Predicate: newsdesk.CallStatus, Object: string(r.Status)},
		{Subject: id, Predicate: newsdesk.CallSuccess, Object: r.Error == ""},
		{Subject: id, Predicate: newsdesk.CallDuration, Object: r.DurationMs},
		{Subject: id, Predicate: newsdesk.CallStartedAt, Object: r.StartedAt.Format(time.RFC3339)},
		{Subject: id, Predicate: newsdesk.CallEndedAt, Object: r.CompletedAt.Format(time.RFC3339)},
	}

	if r.Slot != "" {
		triples = append(triples,
			message.Triple{Subject: id, Predicate: newsdesk.CallSlot, Object: string(r.Slot)},
			message.Triple{Subject: id, Predicate: newsdesk.CallProvider, Object: r.Provider},
			message.Triple{Subject: id, Predicate: newsdesk.CallModel, Object: r.Model},
			message.Triple{Subject: id, Predicate: newsdesk.CallTokensIn, Object: r.PromptTokens},
			message.Triple{Subject: id, Predicate: newsdesk.CallTokensOut, Object: r.CompletionTokens},
			message.Triple{Subject: id, Predicate: newsdesk.CallFinishReason, Object: r.FinishReason},
		)
	}

	if r.ModelHint != "" {
		triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.CallModelHint, Object: r.ModelHint})
	}
	if r.PollAttempts > 0 {
		triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.CallPollAttempts, Object: r.PollAttempts})
	}
	if r.TraceID != "" {
		triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.CallTrace, Object: r.TraceID})
	}
	if r.Error != "" {
		triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.CallError, Object: r.Error})
	}
	if msg, ok := r.SlotErrors[model.SlotPrimary]; ok {
		triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.CallPrimaryError, Object: msg})
	}
	if msg, ok := r.SlotErrors[model.SlotSecondary]; ok {
		triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.CallSecondaryError, Object: msg})
	}

	// Response preview (truncated for lightweight queries)
	if r.Response != "" {
		preview := r.Response
		if len(preview) > responsePreviewMaxLen {
			preview = preview[:responsePreviewMaxLen] + "..."
		}
		triples = append(triples, message.Triple{Subject: id, Predicate: newsdesk.CallResponsePreview, Object: preview})
	}

	return triples
}

// Payload wraps the entity for publishing.
func (e *CallEntity) Payload() *CallPayload {
	return &CallPayload{
		ID:         e.EntityID(),
		TripleData: e.Triples(),
		UpdatedAt:  e.record.CompletedAt,
	}
}

// CallPayload carries call triples to the graph. It implements message.Payload.
type CallPayload struct {
	ID         string           `json:"id"`
	TripleData []message.Triple `json:"triples"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// EntityID returns the entity identifier.
func (p *CallPayload) EntityID() string { return p.ID }

// Triples returns the graph triples for this entity.
func (p *CallPayload) Triples() []message.Triple { return p.TripleData }

// Schema returns the message type.
func (p *CallPayload) Schema() message.Type { return CallType }

// Validate requires an ID and triples that all describe it.
func (p *CallPayload) Validate() error {
	if p.ID == "" {
		return errors.New("entity ID is required")
	}
	if len(p.TripleData) == 0 {
		return errors.New("at least one triple is required")
	}
	for _, t := range p.TripleData {
		if t.Subject != p.ID {
			return fmt.Errorf("triple %s has subject %q, want %q", t.Predicate, t.Subject, p.ID)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler for the Payload interface.
func (p *CallPayload) MarshalJSON() ([]byte, error) {
	type alias CallPayload
	return json.Marshal((*alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler for the Payload interface.
func (p *CallPayload) UnmarshalJSON(data []byte) error {
	type alias CallPayload
	return json.Unmarshal(data, (*alias)(p))
}
