// Package resilience wraps external client calls in a per-attempt timeout
// and a bounded retry with exponential backoff.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
)

// Policy controls timeouts and retries for one class of external call.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt. 0 means
	// a single attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps any single backoff.
	MaxDelay time.Duration

	// Multiplier scales the delay after each retry.
	Multiplier float64

	// JitterFraction adds +/- jitter as a fraction of the computed delay.
	JitterFraction float64

	// AttemptTimeout bounds each attempt. Zero disables the bound.
	AttemptTimeout time.Duration

	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool

	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     2,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		AttemptTimeout: 30 * time.Second,
	}
}

// FromConfig converts the retry section of the configuration to a Policy.
func FromConfig(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxRetries >= 0 {
		p.MaxRetries = cfg.MaxRetries
	}
	if cfg.BaseDelayMs > 0 {
		p.BaseDelay = time.Duration(cfg.BaseDelayMs) * time.Millisecond
	}
	if cfg.MaxDelayMs > 0 {
		p.MaxDelay = time.Duration(cfg.MaxDelayMs) * time.Millisecond
	}
	if cfg.BackoffMultiplier > 0 {
		p.Multiplier = cfg.BackoffMultiplier
	}
	if cfg.JitterFraction >= 0 {
		p.JitterFraction = cfg.JitterFraction
	}
	p.AttemptTimeout = cfg.Timeout()
	return p
}

// WithLogger returns a copy of p that logs every retry.
func (p Policy) WithLogger(service, operation string) Policy {
	p.OnRetry = RetryLogger(service, operation)
	return p
}

// Do runs fn under the policy. Only transient errors are retried and
// cancellation of ctx stops retrying immediately.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that return a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = applyDefaults(p)

	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		val, err := runAttempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !shouldRetry(lastErr) || attempt == p.MaxRetries {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, lastErr)
		}
		if err := Sleep(ctx, Backoff(attempt, p)); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// runAttempt runs one attempt under its own deadline. A deadline hit by the
// attempt, not the caller, is reported as ErrAttemptTimeout so it retries.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	val, err := fn(actx)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return val, eris.Wrapf(ErrAttemptTimeout, "after %s: %v", timeout, err)
	}
	return val, err
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
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

func applyDefaults(p Policy) Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

// Backoff returns the delay after the given zero-based retry attempt:
// BaseDelay * Multiplier^attempt, capped at MaxDelay, with jitter.
func Backoff(attempt int, p Policy) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterFraction > 0 {
		jitterRange := delay * p.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
