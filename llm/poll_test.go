package llm_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/newsdesk/llm"
)

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps++
	c.now = c.now.Add(d)
	return nil
}

func scriptedFetch(statuses ...llm.CompletionStatus) (llm.FetchFunc, *int32) {
	var calls int32
	return func(_ context.Context, handleID string) (*llm.Response, error) {
		n := int(atomic.AddInt32(&calls, 1))
		i := min(n-1, len(statuses)-1)
		resp := &llm.Response{Status: statuses[i], HandleID: handleID}
		if statuses[i] == llm.StatusComplete {
			resp.Content = "final"
		}
		return resp, nil
	}, &calls
}

func pending() *llm.Response {
	return &llm.Response{Status: llm.StatusPending, HandleID: "resp_1"}
}

func TestPoller_Defaults(t *testing.T) {
	p := llm.NewPoller()
	assert.Equal(t, llm.DefaultPollInterval*llm.DefaultPollMaxAttempts, p.Budget())

	p = llm.NewPoller(llm.WithPollInterval(2*time.Second), llm.WithPollMaxAttempts(5))
	assert.Equal(t, 10*time.Second, p.Budget())

	p = llm.NewPoller(llm.WithPollBudget(time.Minute))
	assert.Equal(t, time.Minute, p.Budget())
}

func TestPoller_CompletesAfterPending(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := llm.NewPoller(
		llm.WithPollInterval(5*time.Second),
		llm.WithPollClock(clock.Now, clock.Sleep))

	fetch, calls := scriptedFetch(llm.StatusPending, llm.StatusIncomplete, llm.StatusComplete)
	resp, err := p.PollUntilComplete(context.Background(), fetch, pending())
	require.NoError(t, err)

	assert.Equal(t, llm.StatusComplete, resp.Status)
	assert.Equal(t, "final", resp.Content)
	assert.Equal(t, 3, resp.PollAttempts)
	assert.Equal(t, int32(3), *calls)
	assert.Equal(t, 3, clock.sleeps, "waits before every fetch")
}

func TestPoller_TerminalInitialIsReturned(t *testing.T) {
	p := llm.NewPoller()
	fetch, calls := scriptedFetch(llm.StatusPending)

	for _, status := range []llm.CompletionStatus{llm.StatusComplete, llm.StatusFailed} {
		initial := &llm.Response{Status: status, Content: "c"}
		resp, err := p.PollUntilComplete(context.Background(), fetch, initial)
		require.NoError(t, err)
		assert.Same(t, initial, resp)
	}
	assert.Equal(t, int32(0), *calls)
}

func TestPoller_BoundedByMaxAttempts(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
	}{
		{"one attempt", 1},
		{"few attempts", 3},
		{"default-sized", 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(0, 0)}
			p := llm.NewPoller(
				llm.WithPollInterval(time.Second),
				llm.WithPollMaxAttempts(tt.maxAttempts),
				llm.WithPollClock(clock.Now, clock.Sleep))

			fetch, calls := scriptedFetch(llm.StatusPending)
			resp, err := p.PollUntilComplete(context.Background(), fetch, pending())
			require.NoError(t, err, "exhaustion is not an error")

			assert.Equal(t, llm.StatusIncomplete, resp.Status)
			assert.Equal(t, tt.maxAttempts, resp.PollAttempts)
			assert.LessOrEqual(t, int(*calls), tt.maxAttempts)
			assert.Equal(t, "resp_1", resp.HandleID)
		})
	}
}

func TestPoller_BoundedByBudget(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := llm.NewPoller(
		llm.WithPollInterval(10*time.Second),
		llm.WithPollMaxAttempts(100),
		llm.WithPollBudget(35*time.Second),
		llm.WithPollClock(clock.Now, clock.Sleep))

	fetch, calls := scriptedFetch(llm.StatusPending)
	resp, err := p.PollUntilComplete(context.Background(), fetch, pending())
	require.NoError(t, err)

	assert.Equal(t, llm.StatusIncomplete, resp.Status)
	assert.Equal(t, int32(4), *calls)
}

func TestPoller_FetchErrorAborts(t *testing.T) {
	boom := errors.New("status endpoint 500")
	var calls int
	fetch := func(context.Context, string) (*llm.Response, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return &llm.Response{Status: llm.StatusPending}, nil
	}

	clock := &fakeClock{now: time.Unix(0, 0)}
	p := llm.NewPoller(llm.WithPollMaxAttempts(10), llm.WithPollClock(clock.Now, clock.Sleep))

	_, err := p.PollUntilComplete(context.Background(), fetch, pending())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var pollErr *llm.PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, "resp_1", pollErr.HandleID)
	assert.Equal(t, 2, pollErr.Attempt)
	assert.Equal(t, 2, calls)
}

func TestPoller_MissingHandle(t *testing.T) {
	p := llm.NewPoller()
	fetch, _ := scriptedFetch(llm.StatusComplete)

	_, err := p.PollUntilComplete(context.Background(), fetch, &llm.Response{Status: llm.StatusPending})
	assert.ErrorIs(t, err, llm.ErrPollUnsupported)

	_, err = p.PollUntilComplete(context.Background(), fetch, nil)
	assert.Error(t, err)
}

func TestPoller_ContextCancelled(t *testing.T) {
	p := llm.NewPoller(llm.WithPollInterval(time.Hour))
	fetch, calls := scriptedFetch(llm.StatusComplete)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.PollUntilComplete(ctx, fetch, pending())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(0), *calls)
}

type pollObserverStub struct {
	attempts int
	status   llm.CompletionStatus
}

func (o *pollObserverStub) ObservePoll(attempts int, status llm.CompletionStatus) {
	o.attempts = attempts
	o.status = status
}

func TestPoller_Observer(t *testing.T) {
	obs := &pollObserverStub{}
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := llm.NewPoller(
		llm.WithPollMaxAttempts(2),
		llm.WithPollClock(clock.Now, clock.Sleep),
		llm.WithPollObserver(obs))

	fetch, _ := scriptedFetch(llm.StatusPending)
	_, err := p.PollUntilComplete(context.Background(), fetch, pending())
	require.NoError(t, err)
	assert.Equal(t, 2, obs.attempts)
	assert.Equal(t, llm.StatusIncomplete, obs.status)
}
