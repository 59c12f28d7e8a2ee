package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Poller defaults.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultPollMaxAttempts = 60
)

// FetchFunc re-reads a response by its handle.
type FetchFunc func(ctx context.Context, handleID string) (*Response, error)

// PollObserver receives the number of fetches made for each polled response.
type PollObserver interface {
	ObservePoll(attempts int, status CompletionStatus)
}

// Poller drives a background response to a terminal status. It never fails over;
// exhausting its budget is reported as an incomplete response, not an error.
type Poller struct {
	interval    time.Duration
	maxAttempts int
	budget      time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
	observer    PollObserver
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval sets the wait between fetches.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithPollMaxAttempts sets the maximum number of fetches.
func WithPollMaxAttempts(n int) PollerOption {
	return func(p *Poller) {
		p.maxAttempts = n
	}
}

// WithPollBudget sets the wall-clock ceiling. The default is interval * max attempts;
// a zero interval leaves only the attempt limit.
func WithPollBudget(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.budget = d
	}
}

// WithPollClock replaces the clock and sleep functions.
func WithPollClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) PollerOption {
	return func(p *Poller) {
		p.now = now
		p.sleep = sleep
	}
}

// WithPollLogger sets the logger.
func WithPollLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithPollObserver sets the observer, typically Prometheus metrics.
func WithPollObserver(o PollObserver) PollerOption {
	return func(p *Poller) {
		p.observer = o
	}
}

// NewPoller creates a poller with defaults of 60 fetches 5s apart.
func NewPoller(opts ...PollerOption) *Poller {
	p := &Poller{
		interval:    DefaultPollInterval,
		maxAttempts: DefaultPollMaxAttempts,
		now:         time.Now,
		sleep:       sleepContext,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultPollMaxAttempts
	}
	if p.interval < 0 {
		p.interval = 0
	}
	if p.budget <= 0 {
		p.budget = p.interval * time.Duration(p.maxAttempts)
	}
	return p
}

// Budget returns the wall-clock ceiling.
func (p *Poller) Budget() time.Duration {
	return p.budget
}

// PollUntilComplete fetches the initial response's handle until it reaches a
// terminal status. A fetch error aborts polling and is returned as a *PollError.
// Running out of attempts or time returns the last response marked incomplete.
func (p *Poller) PollUntilComplete(ctx context.Context, fetch FetchFunc, initial *Response) (*Response, error) {
	if initial == nil {
		return nil, &PollError{Err: errors.New("no initial response")}
	}
	if initial.Status.IsTerminal() {
		return initial, nil
	}

	handleID := initial.HandleID
	if handleID == "" {
		return nil, &PollError{Err: ErrPollUnsupported}
	}

	deadline := p.now().Add(p.budget)
	current := initial
	attempts := 0

	for attempts < p.maxAttempts && (p.budget <= 0 || p.now().Before(deadline)) {
		if err := p.sleep(ctx, p.interval); err != nil {
			return nil, &PollError{HandleID: handleID, Attempt: attempts, Err: err}
		}

		attempts++
		next, err := fetch(ctx, handleID)
		if err != nil {
			p.logger.Debug("Poll fetch failed",
				"handle_id", handleID,
				"attempt", attempts,
				"error", err)
			p.observe(attempts, StatusFailed)
			return nil, &PollError{HandleID: handleID, Attempt: attempts, Err: err}
		}
		if next == nil {
			p.observe(attempts, StatusFailed)
			return nil, &PollError{HandleID: handleID, Attempt: attempts, Err: errors.New("empty status response")}
		}

		current = next
		if current.HandleID == "" {
			current.HandleID = handleID
		}
		current.PollAttempts = attempts

		if current.Status.IsTerminal() {
			p.observe(attempts, current.Status)
			return current, nil
		}
	}

	p.logger.Warn("Poll budget exhausted",
		"handle_id", handleID,
		"attempts", attempts,
		"budget", p.budget)

	out := *current
	out.Status = StatusIncomplete
	out.PollAttempts = attempts
	p.observe(attempts, StatusIncomplete)
	return &out, nil
}

func (p *Poller) observe(attempts int, status CompletionStatus) {
	if p.observer != nil {
		p.observer.ObservePoll(attempts, status)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
