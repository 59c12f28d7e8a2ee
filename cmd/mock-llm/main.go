// Package main implements a mock model server for newsdesk end-to-end runs.
// It serves OpenAI-compatible /v1/chat/completions and /v1/responses replies
// from fixture files, routing by the "model" field in the request, so batch
// runs can be exercised offline and deterministically.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434 -polls 2
//
// Fixture files are named by model ("mock-news.json" or "mock-news.txt" maps
// to model "mock-news"). The file content is returned verbatim as the
// assistant text, so fixtures may hold deliberately malformed output.
//
// Sequential fixtures: numbered files ("mock-news.1.txt", "mock-news.2.txt")
// are served in order to successive calls for that model. The base file is the
// repeating fallback once they run out.
//
// Background responses: a /v1/responses request with "background": true is
// answered with a queued response. Retrieving it by ID reports in_progress
// until it has been polled -polls times, then completed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type responsesRequest struct {
	Model        string `json:"model"`
	Input        string `json:"input"`
	Instructions string `json:"instructions,omitempty"`
	Background   bool   `json:"background,omitempty"`
}

type responsesObject struct {
	ID     string           `json:"id"`
	Object string           `json:"object"`
	Status string           `json:"status"`
	Model  string           `json:"model"`
	Output []responseOutput `json:"output"`
	Usage  responsesUsage   `json:"usage"`
}

type responseOutput struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []outputBlock `json:"content"`
}

type outputBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// --- Server ---

// capturedRequest stores the key fields of an incoming request for test verification.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	CallIndex int           `json:"call_index"` // 1-indexed per-model call number
	Timestamp int64         `json:"timestamp"`
}

// pendingResponse is a background response waiting to be polled to completion.
type pendingResponse struct {
	model   string
	content string
	polls   int
}

type server struct {
	fixtures map[string][]string // model name → ordered fixture contents
	calls    atomic.Int64        // total generation calls served
	logger   *slog.Logger

	// pollsToComplete is how many retrievals a background response needs.
	pollsToComplete int

	modelCalls   map[string]*atomic.Int64
	modelCallsMu sync.Mutex

	modelRequests   map[string][]capturedRequest
	modelRequestsMu sync.Mutex

	pending   map[string]*pendingResponse
	pendingMu sync.Mutex
	nextID    atomic.Int64
}

func newServer(fixtures map[string][]string, pollsToComplete int, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures:        fixtures,
		logger:          logger,
		pollsToComplete: pollsToComplete,
		modelCalls:      make(map[string]*atomic.Int64),
		modelRequests:   make(map[string][]capturedRequest),
		pending:         make(map[string]*pendingResponse),
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("POST /v1/responses", s.handleCreateResponse)
	mux.HandleFunc("GET /v1/responses/{id}", s.handleGetResponse)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /requests", s.handleRequests)
	return mux
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	polls := flag.Int("polls", 2, "retrievals before a background response completes")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Allow env var override
	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		logger.Error("Failed to load fixtures", "dir", *fixtureDir, "error", err)
		os.Exit(1)
	}
	logger.Info("Loaded fixtures", "models", len(fixtures), "dir", *fixtureDir)
	for model, seq := range fixtures {
		logger.Info("Fixture model", "model", model, "count", len(seq))
	}

	s := newServer(fixtures, *polls, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("Mock model server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// captureRequest stores a request for later retrieval via /requests.
func (s *server) captureRequest(model string, messages []chatMessage, callIndex int) {
	s.modelRequestsMu.Lock()
	defer s.modelRequestsMu.Unlock()
	s.modelRequests[model] = append(s.modelRequests[model], capturedRequest{
		Model:     model,
		Messages:  messages,
		CallIndex: callIndex,
		Timestamp: time.Now().UnixMilli(),
	})
}

// getModelCounter returns the call counter for a model, creating it lazily.
func (s *server) getModelCounter(model string) *atomic.Int64 {
	s.modelCallsMu.Lock()
	defer s.modelCallsMu.Unlock()
	if c, ok := s.modelCalls[model]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.modelCalls[model] = c
	return c
}

// nextFixture picks the fixture for the next call to model and records the request.
func (s *server) nextFixture(model string, messages []chatMessage) (string, bool) {
	callNum := s.calls.Add(1)

	// Try exact model name, then strip "mock-" prefix
	seq, ok := s.fixtures[model]
	if !ok {
		seq, ok = s.fixtures[strings.TrimPrefix(model, "mock-")]
	}
	if !ok {
		s.logger.Warn("No fixture for model", "call", callNum, "model", model)
		return "", false
	}

	callIndex := int(s.getModelCounter(model).Add(1) - 1) // 0-indexed
	s.captureRequest(model, messages, callIndex+1)

	content := seq[len(seq)-1] // repeat last fixture
	if callIndex < len(seq) {
		content = seq[callIndex]
	}

	s.logger.Info("Serving fixture", "call", callNum, "model", model, "index", callIndex+1, "of", len(seq))
	return content, true
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	content, ok := s.nextFixture(req.Model, req.Messages)
	if !ok {
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	writeJSON(w, chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     len(content) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(content) / 2,
		},
	})
}

func (s *server) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	var req responsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	messages := []chatMessage{{Role: "user", Content: req.Input}}
	if req.Instructions != "" {
		messages = append([]chatMessage{{Role: "system", Content: req.Instructions}}, messages...)
	}

	content, ok := s.nextFixture(req.Model, messages)
	if !ok {
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	id := fmt.Sprintf("resp_mock_%d", s.nextID.Add(1))
	if !req.Background || s.pollsToComplete <= 0 {
		writeJSON(w, completedResponse(id, req.Model, content))
		return
	}

	s.pendingMu.Lock()
	s.pending[id] = &pendingResponse{model: req.Model, content: content}
	s.pendingMu.Unlock()

	writeJSON(w, responsesObject{ID: id, Object: "response", Status: "queued", Model: req.Model, Output: []responseOutput{}})
}

func (s *server) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.pendingMu.Lock()
	p, ok := s.pending[id]
	var done bool
	if ok {
		p.polls++
		done = p.polls >= s.pollsToComplete
	}
	s.pendingMu.Unlock()

	if !ok {
		http.Error(w, fmt.Sprintf("no response %q", id), http.StatusNotFound)
		return
	}

	if !done {
		writeJSON(w, responsesObject{ID: id, Object: "response", Status: "in_progress", Model: p.model, Output: []responseOutput{}})
		return
	}
	writeJSON(w, completedResponse(id, p.model, p.content))
}

func completedResponse(id, model, content string) responsesObject {
	return responsesObject{
		ID:     id,
		Object: "response",
		Status: "completed",
		Model:  model,
		Output: []responseOutput{{
			Type:    "message",
			Role:    "assistant",
			Content: []outputBlock{{Type: "output_text", Text: content}},
		}},
		Usage: responsesUsage{
			InputTokens:  len(content) / 4,
			OutputTokens: len(content) / 4,
			TotalTokens:  len(content) / 2,
		},
	}
}

// handleModels returns the list of available mock models.
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	models := make([]modelEntry, 0, len(s.fixtures))
	for name := range s.fixtures {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	writeJSON(w, map[string]any{"object": "list", "data": models})
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.modelCallsMu.Lock()
	callsByModel := make(map[string]int64, len(s.modelCalls))
	for model, counter := range s.modelCalls {
		callsByModel[model] = counter.Load()
	}
	s.modelCallsMu.Unlock()

	s.pendingMu.Lock()
	pending := 0
	for _, p := range s.pending {
		if p.polls < s.pollsToComplete {
			pending++
		}
	}
	s.pendingMu.Unlock()

	writeJSON(w, map[string]any{
		"total_calls":       s.calls.Load(),
		"calls_by_model":    callsByModel,
		"pending_responses": pending,
	})
}

// handleRequests returns captured requests for test assertions.
// Query params:
//   - model: filter by model name (optional)
//   - call: filter by call index, 1-indexed (optional)
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callIdx, _ := strconv.Atoi(r.URL.Query().Get("call"))

	s.modelRequestsMu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		for _, req := range reqs {
			if callIdx == 0 || req.CallIndex == callIdx {
				result[model] = append(result[model], req)
			}
		}
	}
	s.modelRequestsMu.Unlock()

	writeJSON(w, map[string]any{"requests_by_model": result})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// numberedFileRe matches files like "mock-news.1.txt" or "mock-news.2.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.(json|txt)$`)

// loadFixtures reads fixture files from dir and returns a map of model→content sequence.
//
// For each model, fixtures are ordered:
//  1. Numbered files (model.1.txt, model.2.txt, ...) in numeric order
//  2. Base file (model.txt or model.json) appended as the final fallback
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		ext := filepath.Ext(name)
		if d.IsDir() || (ext != ".json" && ext != ".txt") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		content := string(data)

		if matches := numberedFileRe.FindStringSubmatch(name); matches != nil {
			model := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[model] == nil {
				numberedFiles[model] = make(map[int]string)
			}
			numberedFiles[model][index] = content
			return nil
		}

		baseFiles[strings.TrimSuffix(name, ext)] = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string][]string)
	for model, numbered := range numberedFiles {
		indices := make([]int, 0, len(numbered))
		for idx := range numbered {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			fixtures[model] = append(fixtures[model], numbered[idx])
		}
	}
	for model, base := range baseFiles {
		fixtures[model] = append(fixtures[model], base)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
