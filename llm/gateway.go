// Package llm provides the provider response gateway: one model call with
// failover from the primary to the secondary slot, completion polling for
// background responses, and call recording.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/newsdesk/model"
)

// DefaultCallTimeout bounds a single synchronous provider call.
const DefaultCallTimeout = 15 * time.Second

// Call outcomes reported to a GatewayObserver.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// GatewayObserver receives one outcome per slot attempted.
type GatewayObserver interface {
	ObserveCall(slot model.Slot, outcome string, duration time.Duration)
}

// Gateway calls the primary backend and fails over to the secondary one.
// It holds only configuration and is safe for concurrent use.
type Gateway struct {
	registry    *model.Registry
	backends    map[model.Slot]Backend
	poller      *Poller
	callTimeout time.Duration
	logger      *slog.Logger
	recorder    CallRecorder
	observer    GatewayObserver
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithCallTimeout sets the per-call timeout applied to each backend call and status fetch.
func WithCallTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.callTimeout = d
	}
}

// WithPoller sets the poller used for non-terminal responses.
func WithPoller(p *Poller) GatewayOption {
	return func(g *Gateway) {
		g.poller = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithCallRecorder records every call, for example to the knowledge graph.
func WithCallRecorder(r CallRecorder) GatewayOption {
	return func(g *Gateway) {
		g.recorder = r
	}
}

// WithGatewayObserver sets the observer, typically Prometheus metrics.
func WithGatewayObserver(o GatewayObserver) GatewayOption {
	return func(g *Gateway) {
		g.observer = o
	}
}

// WithBackend binds a backend to a slot, replacing any backend built from the registry.
func WithBackend(slot model.Slot, b Backend) GatewayOption {
	return func(g *Gateway) {
		if b == nil {
			delete(g.backends, slot)
			return
		}
		g.backends[slot] = b
	}
}

// NewGateway creates a gateway. Backends come from WithBackend; the registry
// supplies slot health and may be nil.
func NewGateway(registry *model.Registry, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		registry:    registry,
		backends:    make(map[model.Slot]Backend),
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.poller == nil {
		g.poller = NewPoller(WithPollLogger(g.logger))
	}
	return g
}

// NewGatewayFromRegistry builds an HTTP backend for every configured slot.
// A slot whose API key is missing is left unconfigured and the other slot
// still serves; an unknown provider is an error. When no slot ends up with a
// backend the result is ErrNoProvidersConfigured. Backends bound with
// WithBackend take precedence over the registry.
func NewGatewayFromRegistry(registry *model.Registry, backendOpts []BackendOption, opts ...GatewayOption) (*Gateway, error) {
	if registry == nil {
		return nil, ErrNoProvidersConfigured
	}

	g := NewGateway(registry, opts...)

	var missing []string
	for _, slot := range registry.ConfiguredSlots() {
		if _, bound := g.backends[slot]; bound {
			continue
		}
		b, err := NewHTTPBackend(registry.GetEndpoint(slot), backendOpts...)
		if errors.Is(err, ErrMissingCredentials) {
			g.logger.Warn("Provider slot has no credentials, leaving it unconfigured",
				"slot", slot, "error", err)
			missing = append(missing, fmt.Sprintf("%s: %v", slot, err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s slot: %w", slot, err)
		}
		g.backends[slot] = b
	}

	if len(g.backends) == 0 {
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w (%s)", ErrNoProvidersConfigured, strings.Join(missing, "; "))
		}
		return nil, ErrNoProvidersConfigured
	}
	return g, nil
}

// Slots returns the slots that have a backend, in failover order.
func (g *Gateway) Slots() []model.Slot {
	slots := make([]model.Slot, 0, len(model.Slots))
	for _, s := range model.Slots {
		if _, ok := g.backends[s]; ok {
			slots = append(slots, s)
		}
	}
	return slots
}

// Generate performs one model call. Provider failures are captured and the next
// slot is tried; only when every slot fails is an *AllProvidersFailedError returned.
// With no backend at all it returns ErrNoProvidersConfigured without calling anything.
func (g *Gateway) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(g.Slots()) == 0 {
		return nil, ErrNoProvidersConfigured
	}
	if err := req.Validate(); err != nil {
		return nil, NewFatalError(fmt.Errorf("invalid request: %w", err))
	}

	requestID := uuid.New().String()
	startedAt := time.Now()
	trace := GetTraceContext(ctx)

	slotErrs := map[model.Slot]error{
		model.SlotPrimary:   ErrProviderNotConfigured,
		model.SlotSecondary: ErrProviderNotConfigured,
	}

	record := &CallRecord{
		RequestID: requestID,
		TraceID:   trace.TraceID,
		ModelHint: req.ModelHint,
		StartedAt: startedAt,
	}

	for _, slot := range model.Slots {
		backend, ok := g.backends[slot]
		if !ok {
			continue
		}

		if g.registry != nil && !g.registry.IsEndpointAvailable(slot) {
			slotErrs[slot] = ErrCircuitOpen
			g.observe(slot, OutcomeSkipped, 0)
			g.logger.Warn("Provider circuit open, skipping",
				"slot", slot,
				"provider", backend.Name(),
				"request_id", requestID)
			continue
		}

		slotReq := req
		if slot != model.SlotPrimary {
			slotReq.ModelHint = ""
		}

		slotStart := time.Now()
		resp, err := g.callSlot(ctx, backend, slotReq)
		if err == nil {
			g.markSuccess(slot)
			g.observe(slot, OutcomeSuccess, time.Since(slotStart))

			resp.RequestID = requestID
			resp.ProviderUsed = slot

			record.Slot = slot
			record.Provider = backend.Name()
			record.Model = resp.Model
			record.Status = resp.Status
			record.PollAttempts = resp.PollAttempts
			record.Response = resp.Content
			record.PromptTokens = resp.Usage.PromptTokens
			record.CompletionTokens = resp.Usage.CompletionTokens
			record.FinishReason = resp.FinishReason
			record.SlotErrors = slotErrorStrings(slotErrs, slot)
			g.recordCall(ctx, record)

			if slot != model.SlotPrimary {
				g.logger.Info("Served by failover provider",
					"slot", slot,
					"provider", backend.Name(),
					"request_id", requestID)
			}
			return resp, nil
		}

		// The caller gave up; no further slot can help.
		if ctxErr := ctx.Err(); ctxErr != nil {
			slotErrs[slot] = err
			record.Status = StatusFailed
			record.Error = ctxErr.Error()
			record.SlotErrors = slotErrorStrings(slotErrs, "")
			g.recordCall(ctx, record)
			return nil, ctxErr
		}

		slotErrs[slot] = err
		g.markFailure(slot, err)
		g.observe(slot, OutcomeFailure, time.Since(slotStart))

		g.logger.Warn("Provider failed",
			"slot", slot,
			"provider", backend.Name(),
			"request_id", requestID,
			"error", err)
	}

	failed := &AllProvidersFailedError{
		Primary:   slotErrs[model.SlotPrimary],
		Secondary: slotErrs[model.SlotSecondary],
	}

	record.Status = StatusFailed
	record.Error = failed.Error()
	record.SlotErrors = slotErrorStrings(slotErrs, "")
	g.recordCall(ctx, record)

	return nil, failed
}

// callSlot runs one backend call, polls a pending response to a terminal
// status, and turns anything short of non-empty complete content into an error.
func (g *Gateway) callSlot(ctx context.Context, backend Backend, req Request) (*Response, error) {
	resp, err := g.callWithTimeout(ctx, func(ctx context.Context) (*Response, error) {
		return backend.Call(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrEmptyContent
	}
	if resp.Status == "" {
		resp.Status = StatusComplete
	}

	if !resp.Status.IsTerminal() {
		fetcher, ok := backend.(StatusFetcher)
		if !ok || resp.HandleID == "" {
			return nil, ErrPollUnsupported
		}

		fetch := func(ctx context.Context, handleID string) (*Response, error) {
			return g.callWithTimeout(ctx, func(ctx context.Context) (*Response, error) {
				return fetcher.FetchStatus(ctx, handleID)
			})
		}

		resp, err = g.poller.PollUntilComplete(ctx, fetch, resp)
		if err != nil {
			return nil, err
		}
	}

	switch resp.Status {
	case StatusComplete:
		if strings.TrimSpace(resp.Content) == "" {
			return nil, ErrEmptyContent
		}
		return resp, nil
	case StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrCompletionFailed, describe(resp))
	default:
		return nil, fmt.Errorf("%w after %d polls: %s", ErrCompletionIncomplete, resp.PollAttempts, describe(resp))
	}
}

// callWithTimeout applies the per-call timeout and names it in the error.
func (g *Gateway) callWithTimeout(ctx context.Context, fn func(context.Context) (*Response, error)) (*Response, error) {
	if g.callTimeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	resp, err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, NewTransientError(fmt.Errorf("provider call timed out after %s: %w", g.callTimeout, err))
	}
	return resp, err
}

func (g *Gateway) markSuccess(slot model.Slot) {
	if g.registry != nil {
		g.registry.MarkEndpointSuccess(slot)
	}
}

// markFailure counts a failure against the slot's circuit. Fatal errors point
// at configuration (auth, bad request) rather than endpoint health.
func (g *Gateway) markFailure(slot model.Slot, err error) {
	if g.registry == nil || IsFatal(err) {
		return
	}
	g.registry.MarkEndpointFailure(slot)
}

func (g *Gateway) observe(slot model.Slot, outcome string, d time.Duration) {
	if g.observer != nil {
		g.observer.ObserveCall(slot, outcome, d)
	}
}

// recordCall stores a call record if a recorder is configured.
// Failures are logged but don't affect the call itself.
func (g *Gateway) recordCall(ctx context.Context, record *CallRecord) {
	if g.recorder == nil {
		return
	}

	record.CompletedAt = time.Now()
	record.DurationMs = record.CompletedAt.Sub(record.StartedAt).Milliseconds()

	if err := g.recorder.Store(context.WithoutCancel(ctx), record); err != nil {
		g.logger.Warn("Failed to record model call",
			"request_id", record.RequestID,
			"error", err)
	}
}

// slotErrorStrings renders captured errors, leaving out the successful slot
// and slots that were never configured.
func slotErrorStrings(errs map[model.Slot]error, success model.Slot) map[model.Slot]string {
	out := make(map[model.Slot]string)
	for slot, err := range errs {
		if slot == success || err == nil || errors.Is(err, ErrProviderNotConfigured) {
			continue
		}
		out[slot] = err.Error()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func describe(resp *Response) string {
	if resp.FinishReason != "" {
		return fmt.Sprintf("handle %q, reason %s", resp.HandleID, resp.FinishReason)
	}
	return fmt.Sprintf("handle %q", resp.HandleID)
}
