package llm

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/c360studio/newsdesk/model"
)

// CompletionStatus is the lifecycle state of a model response.
type CompletionStatus string

const (
	// StatusPending means a background request is queued or running.
	StatusPending CompletionStatus = "pending"

	// StatusComplete means the response finished and carries content.
	StatusComplete CompletionStatus = "complete"

	// StatusIncomplete means the response stopped short of completion.
	// The poller keeps fetching an incomplete handle until its budget runs out.
	StatusIncomplete CompletionStatus = "incomplete"

	// StatusFailed means the provider gave up on the request.
	StatusFailed CompletionStatus = "failed"
)

// IsTerminal reports whether no further polling can change the status.
func (s CompletionStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Temperature bounds accepted by every provider.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Request is a single model call.
type Request struct {
	// Prompt is the user prompt text.
	Prompt string

	// System is an optional system instruction.
	System string

	// ModelHint overrides the endpoint model, and only on the primary slot.
	ModelHint string

	// MaxOutputTokens limits response length. 0 uses the endpoint default.
	MaxOutputTokens int

	// Temperature controls randomness. nil uses the provider default.
	Temperature *float64

	// WebSearch asks for web-grounded answers where the endpoint supports it.
	WebSearch bool
}

// Validate rejects requests no provider could serve.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New("prompt is required")
	}
	if r.Temperature != nil && (math.IsNaN(*r.Temperature) || *r.Temperature < MinTemperature || *r.Temperature > MaxTemperature) {
		return fmt.Errorf("temperature %v out of range [%v, %v]", *r.Temperature, MinTemperature, MaxTemperature)
	}
	if r.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens must not be negative, got %d", r.MaxOutputTokens)
	}
	return nil
}

// TokenUsage represents token consumption details for a call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the result of a model call.
type Response struct {
	// RequestID uniquely identifies the gateway call.
	RequestID string

	// Content is the generated text. Non-empty whenever the gateway returns StatusComplete.
	Content string

	// ProviderUsed is the slot that produced the response.
	ProviderUsed model.Slot

	// Status is the completion status.
	Status CompletionStatus

	// Model is the model that was used.
	Model string

	// HandleID identifies a background response for polling.
	HandleID string

	// Usage contains token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string

	// PollAttempts is the number of status fetches made for this response.
	PollAttempts int
}
