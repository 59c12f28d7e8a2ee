// Package retry runs operations against flaky infrastructure with bounded, linearly
// growing backoff. Errors are returned exactly as the operation produced them.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds retry configuration for a single operation.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is multiplied by the retry number to get the sleep before that retry.
	BaseDelay time.Duration `yaml:"base_delay"`

	// OnRetry is called before each sleep with the 1-based number of the failed attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`
}

// DefaultConfig returns the defaults used for record store calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   150 * time.Millisecond,
	}
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	return c
}

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// linearBackOff waits base, 2*base, 3*base, ... between attempts.
type linearBackOff struct {
	base  time.Duration
	tries int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.tries++
	return b.base * time.Duration(b.tries)
}

func (b *linearBackOff) Reset() {
	b.tries = 0
}

// Do executes op until it succeeds, returns a permanent error, the context ends,
// or cfg.MaxAttempts is reached. On exhaustion the last error is returned as is.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: cfg.BaseDelay}, uint64(cfg.MaxAttempts-1)),
		ctx,
	)

	attempt := 0
	notify := func(err error, delay time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
	}

	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return op(ctx)
	}, b, notify)
}

// Run is Do for operations that produce no value.
func Run(ctx context.Context, cfg Config, op func(context.Context) error) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
