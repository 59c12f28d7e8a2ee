package providers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/newsdesk/llm"
)

func TestOllamaProvider_BuildURL(t *testing.T) {
	p := &OllamaProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"empty uses default", "", "http://localhost:11434/v1/chat/completions"},
		{"custom base URL", "http://gpu-box:8000/v1", "http://gpu-box:8000/v1/chat/completions"},
		{"trailing slash handled", "http://localhost:11434/v1/", "http://localhost:11434/v1/chat/completions"},
		{"already complete", "http://localhost:11434/v1/chat/completions", "http://localhost:11434/v1/chat/completions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestOllamaProvider_BuildRequestBody(t *testing.T) {
	p := &OllamaProvider{}

	temp := 0.0
	body, err := p.BuildRequestBody(llm.Request{
		System:      "Return JSON.",
		Prompt:      "List three items.",
		Temperature: &temp,
	}, llm.CallOptions{Model: "qwen2.5-coder:14b", MaxTokens: 512, WebSearch: true})
	require.NoError(t, err)

	s := string(body)
	assert.Contains(t, s, `"model":"qwen2.5-coder:14b"`)
	assert.Contains(t, s, `{"role":"system","content":"Return JSON."}`)
	assert.Contains(t, s, `{"role":"user","content":"List three items."}`)
	assert.Contains(t, s, `"temperature":0`)
	assert.Contains(t, s, `"max_tokens":512`)
	assert.Contains(t, s, `"stream":false`)
	assert.NotContains(t, s, "web_search")
}

func TestOllamaProvider_BuildRequestBody_NoMaxTokens(t *testing.T) {
	p := &OllamaProvider{}

	body, err := p.BuildRequestBody(llm.Request{Prompt: "hi"}, llm.CallOptions{Model: "m"})
	require.NoError(t, err)
	assert.NotContains(t, string(body), "max_tokens")
	assert.NotContains(t, string(body), `"system"`)
}

func TestOllamaProvider_SetHeaders(t *testing.T) {
	p := &OllamaProvider{}

	req, err := http.NewRequest(http.MethodPost, "http://localhost:11434/v1/chat/completions", nil)
	require.NoError(t, err)
	p.SetHeaders(req, "")
	assert.Empty(t, req.Header.Get("Authorization"))

	p.SetHeaders(req, "token")
	assert.Equal(t, "Bearer token", req.Header.Get("Authorization"))
	assert.Empty(t, p.DefaultAPIKeyEnv())
}

func TestOllamaProvider_ParseResponse(t *testing.T) {
	p := &OllamaProvider{}

	body := []byte(`{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "qwen2.5-coder:14b",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"items\": []}"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
	}`)

	resp, err := p.ParseResponse(body, "qwen2.5-coder:14b")
	require.NoError(t, err)
	assert.Equal(t, `{"items": []}`, resp.Content)
	assert.Equal(t, llm.StatusComplete, resp.Status)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestOllamaProvider_ParseResponse_NoChoices(t *testing.T) {
	p := &OllamaProvider{}
	_, err := p.ParseResponse([]byte(`{"choices": []}`), "m")
	assert.Error(t, err)
}
