// Package testutil provides scripted backends for testing code that calls the gateway.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/newsdesk/llm"
)

// Step is one scripted backend reply.
type Step struct {
	Response *llm.Response
	Err      error
}

// MockBackend is a thread-safe llm.Backend and llm.StatusFetcher that replays
// scripted steps.
//
// Usage:
//
//	// Always succeeds
//	mock := &MockBackend{Responses: []*llm.Response{{Content: `{"items": []}`, Status: llm.StatusComplete}}}
//
//	// Always fails
//	mock := &MockBackend{Err: errors.New("connection refused")}
//
//	// Background: pending on call, complete on the second fetch
//	mock := &MockBackend{
//	    Responses: []*llm.Response{{Status: llm.StatusPending, HandleID: "resp_1"}},
//	    Fetches: []Step{
//	        {Response: &llm.Response{Status: llm.StatusPending}},
//	        {Response: &llm.Response{Status: llm.StatusComplete, Content: "done"}},
//	    },
//	}
type MockBackend struct {
	// BackendName is returned by Name. Defaults to "mock".
	BackendName string

	// Responses are returned by Call in sequence; the last one repeats.
	Responses []*llm.Response

	// Err is returned by Call when set (takes precedence over Responses).
	Err error

	// Fetches are returned by FetchStatus in sequence; the last one repeats.
	Fetches []Step

	// Block makes Call wait for the context to end.
	Block bool

	mu         sync.Mutex
	requests   []llm.Request
	handles    []string
	callIndex  int
	fetchIndex int
}

// Name implements llm.Backend.
func (m *MockBackend) Name() string {
	if m.BackendName == "" {
		return "mock"
	}
	return m.BackendName
}

// Call implements llm.Backend.
func (m *MockBackend) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	block := m.Block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return &llm.Response{Status: llm.StatusComplete, Model: "test-model"}, nil
	}

	i := min(m.callIndex, len(m.Responses)-1)
	m.callIndex++
	cp := *m.Responses[i]
	return &cp, nil
}

// FetchStatus implements llm.StatusFetcher.
func (m *MockBackend) FetchStatus(_ context.Context, handleID string) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handles = append(m.handles, handleID)
	if len(m.Fetches) == 0 {
		return &llm.Response{Status: llm.StatusPending, HandleID: handleID}, nil
	}

	i := min(m.fetchIndex, len(m.Fetches)-1)
	m.fetchIndex++
	step := m.Fetches[i]
	if step.Err != nil {
		return nil, step.Err
	}
	cp := *step.Response
	return &cp, nil
}

// CallCount returns the number of Call invocations.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// FetchCount returns the number of FetchStatus invocations.
func (m *MockBackend) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Requests returns a copy of the requests received.
func (m *MockBackend) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// FetchedHandles returns the handle IDs passed to FetchStatus.
func (m *MockBackend) FetchedHandles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.handles...)
}

// Reset clears recorded calls and rewinds the scripts.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.handles = nil
	m.callIndex = 0
	m.fetchIndex = 0
}

// Complete returns a complete response with content, for building scripts.
func Complete(content string) *llm.Response {
	return &llm.Response{Content: content, Status: llm.StatusComplete, Model: "test-model"}
}
