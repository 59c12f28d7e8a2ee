package llm

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/semstreams/message"

	"github.com/c360studio/newsdesk/model"
	"github.com/c360studio/newsdesk/vocabulary/newsdesk"
)

func predicates(triples []message.Triple) map[string]any {
	out := make(map[string]any, len(triples))
	for _, t := range triples {
		out[t.Predicate] = t.Object
	}
	return out
}

func TestCallEntity_EntityID(t *testing.T) {
	entity := NewCallEntity(&CallRecord{RequestID: "req-123"}, "myorg", "desk")

	expected := "myorg.newsdesk.llm.call.desk.req-123"
	if got := entity.EntityID(); got != expected {
		t.Errorf("EntityID() = %q, want %q", got, expected)
	}
}

func TestCallEntity_Triples_Success(t *testing.T) {
	now := time.Now()
	record := &CallRecord{
		RequestID:        "req-1",
		TraceID:          "job-9",
		Slot:             model.SlotSecondary,
		Provider:         "ollama/qwen",
		Model:            "qwen",
		ModelHint:        "gpt-5",
		Status:           StatusComplete,
		PollAttempts:     4,
		Response:         `{"items": []}`,
		PromptTokens:     100,
		CompletionTokens: 50,
		FinishReason:     "stop",
		SlotErrors:       map[model.Slot]string{model.SlotPrimary: "429 rate limited"},
		StartedAt:        now,
		CompletedAt:      now.Add(time.Second),
		DurationMs:       1000,
	}

	triples := NewCallEntity(record, "local", "newsdesk").Triples()
	got := predicates(triples)

	want := map[string]any{
		newsdesk.CallRequestID:       "req-1",
		newsdesk.CallSlot:            "secondary",
		newsdesk.CallProvider:        "ollama/qwen",
		newsdesk.CallModel:           "qwen",
		newsdesk.CallModelHint:       "gpt-5",
		newsdesk.CallStatus:          "complete",
		newsdesk.CallPollAttempts:    4,
		newsdesk.CallTokensIn:        100,
		newsdesk.CallTokensOut:       50,
		newsdesk.CallFinishReason:    "stop",
		newsdesk.CallSuccess:         true,
		newsdesk.CallDuration:        int64(1000),
		newsdesk.CallTrace:           "job-9",
		newsdesk.CallPrimaryError:    "429 rate limited",
		newsdesk.CallResponsePreview: `{"items": []}`,
	}
	for pred, obj := range want {
		if got[pred] != obj {
			t.Errorf("%s = %v, want %v", pred, got[pred], obj)
		}
	}
	if _, ok := got[newsdesk.CallSecondaryError]; ok {
		t.Error("unexpected secondary error triple")
	}
	if _, ok := got[newsdesk.CallError]; ok {
		t.Error("unexpected error triple")
	}
}

func TestCallEntity_Triples_Failure(t *testing.T) {
	record := &CallRecord{
		RequestID: "req-2",
		Status:    StatusFailed,
		Error:     "all providers failed: primary: a; secondary: b",
		SlotErrors: map[model.Slot]string{
			model.SlotPrimary:   "a",
			model.SlotSecondary: "b",
		},
	}

	got := predicates(NewCallEntity(record, "local", "newsdesk").Triples())

	if got[newsdesk.CallSuccess] != false {
		t.Errorf("success = %v, want false", got[newsdesk.CallSuccess])
	}
	if got[newsdesk.CallSecondaryError] != "b" {
		t.Errorf("secondary error = %v", got[newsdesk.CallSecondaryError])
	}
	for _, pred := range []string{newsdesk.CallSlot, newsdesk.CallProvider, newsdesk.CallResponsePreview, newsdesk.CallPollAttempts} {
		if _, ok := got[pred]; ok {
			t.Errorf("unexpected %s triple on failed call", pred)
		}
	}
}

func TestCallEntity_ResponsePreviewTruncation(t *testing.T) {
	record := &CallRecord{
		RequestID: "req-3",
		Status:    StatusComplete,
		Response:  strings.Repeat("a", 1000),
	}

	got := predicates(NewCallEntity(record, "local", "newsdesk").Triples())
	preview, _ := got[newsdesk.CallResponsePreview].(string)
	if len(preview) != responsePreviewMaxLen+3 {
		t.Errorf("preview length = %d, want %d", len(preview), responsePreviewMaxLen+3)
	}
	if !strings.HasSuffix(preview, "...") {
		t.Error("expected truncated preview to end with ...")
	}
}

func TestCallPayload_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload *CallPayload
		wantErr bool
	}{
		{
			name: "valid",
			payload: &CallPayload{
				ID:         "e1",
				TripleData: []message.Triple{{Subject: "e1", Predicate: newsdesk.CallStatus, Object: "complete"}},
			},
		},
		{
			name:    "missing ID",
			payload: &CallPayload{TripleData: []message.Triple{{Subject: "e1"}}},
			wantErr: true,
		},
		{
			name:    "no triples",
			payload: &CallPayload{ID: "e1"},
			wantErr: true,
		},
		{
			name: "foreign subject",
			payload: &CallPayload{
				ID:         "e1",
				TripleData: []message.Triple{{Subject: "e2", Predicate: newsdesk.CallStatus, Object: "x"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCallPayload_JSON(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	record := &CallRecord{RequestID: "req-4", Status: StatusComplete, CompletedAt: now}
	payload := NewCallEntity(record, "local", "newsdesk").Payload()

	if payload.Schema() != CallType {
		t.Errorf("Schema() = %v, want %v", payload.Schema(), CallType)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded CallPayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.EntityID() != payload.EntityID() {
		t.Errorf("EntityID = %q, want %q", decoded.EntityID(), payload.EntityID())
	}
	if len(decoded.Triples()) != len(payload.Triples()) {
		t.Errorf("triples = %d, want %d", len(decoded.Triples()), len(payload.Triples()))
	}
	if !decoded.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", decoded.UpdatedAt, now)
	}
}
