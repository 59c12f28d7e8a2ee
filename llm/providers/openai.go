package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/c360studio/newsdesk/llm"
)

// OpenAIProvider implements the OpenAI Responses API, including background
// mode where the first reply is a handle that is fetched until it completes.
type OpenAIProvider struct{}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

// Name returns the provider identifier.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// DefaultAPIKeyEnv returns the environment variable holding the API key.
func (o *OpenAIProvider) DefaultAPIKeyEnv() string {
	return "OPENAI_API_KEY"
}

func openAIBase(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return strings.TrimSuffix(baseURL, "/responses")
}

// BuildURL constructs the responses endpoint.
func (o *OpenAIProvider) BuildURL(baseURL string) string {
	return openAIBase(baseURL) + "/responses"
}

// BuildStatusURL constructs the URL that retrieves a response by ID.
func (o *OpenAIProvider) BuildStatusURL(baseURL, handleID string) string {
	return openAIBase(baseURL) + "/responses/" + url.PathEscape(handleID)
}

// SetHeaders adds OpenAI authentication headers.
func (o *OpenAIProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if org := os.Getenv("OPENAI_ORGANIZATION"); org != "" {
		req.Header.Set("OpenAI-Organization", org)
	}
}

type responsesRequest struct {
	Model           string          `json:"model"`
	Input           string          `json:"input"`
	Instructions    string          `json:"instructions,omitempty"`
	Background      bool            `json:"background,omitempty"`
	Store           *bool           `json:"store,omitempty"`
	Tools           []responsesTool `json:"tools,omitempty"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
}

type responsesTool struct {
	Type string `json:"type"`
}

// BuildRequestBody creates the responses API request body.
func (o *OpenAIProvider) BuildRequestBody(req llm.Request, opts llm.CallOptions) ([]byte, error) {
	body := responsesRequest{
		Model:        opts.Model,
		Input:        req.Prompt,
		Instructions: req.System,
		Temperature:  req.Temperature,
	}

	if opts.Background {
		// Background responses must be stored to be retrievable
		store := true
		body.Background = true
		body.Store = &store
	}
	if opts.WebSearch {
		body.Tools = []responsesTool{{Type: "web_search_preview"}}
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		body.MaxOutputTokens = &maxTokens
	}

	return json.Marshal(body)
}

type responsesResponse struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Status string `json:"status"`
	Model  string `json:"model"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// responseStatus maps the API's lifecycle states onto completion statuses.
func responseStatus(s string) llm.CompletionStatus {
	switch s {
	case "completed", "":
		return llm.StatusComplete
	case "queued", "in_progress":
		return llm.StatusPending
	case "incomplete":
		return llm.StatusIncomplete
	default: // failed, cancelled
		return llm.StatusFailed
	}
}

// ParseResponse extracts output text and status from a responses API object.
// The same shape is returned by creation and retrieval.
func (o *OpenAIProvider) ParseResponse(body []byte, _ string) (*llm.Response, error) {
	var resp responsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse responses object: %w", err)
	}

	var content strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				content.WriteString(part.Text)
			}
		}
	}

	out := &llm.Response{
		Content:  content.String(),
		Model:    resp.Model,
		Status:   responseStatus(resp.Status),
		HandleID: resp.ID,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: resp.Status,
	}

	switch {
	case resp.IncompleteDetails != nil && resp.IncompleteDetails.Reason != "":
		out.FinishReason = resp.IncompleteDetails.Reason
	case resp.Error != nil && resp.Error.Message != "":
		out.FinishReason = resp.Error.Message
	}

	return out, nil
}
