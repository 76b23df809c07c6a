// Package retry wraps single remote calls in bounded exponential backoff.
// The policy is a plain value handed to the executor, so retry behavior is
// inspectable in config and testable without real clocks on the fast paths.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"bugbridge/internal/platform/config"
)

// Class partitions remote failures for the policy.
type Class int

const (
	// Retryable failures (timeouts, 5xx, rate limits) are worth another
	// attempt after backoff.
	Retryable Class = iota
	// Terminal failures (bad request, auth) will fail identically on every
	// attempt and are surfaced immediately.
	Terminal
)

// Classifier decides whether a remote failure is worth retrying.
type Classifier func(error) Class

// ExhaustedError wraps a retryable failure that survived every allowed
// attempt, converting it to a terminal outcome for the step.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Policy holds the backoff parameters. All fields are configuration-exposed.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64
	MaxAttempts int

	// sleep is swapped in tests to observe delays without waiting.
	sleep func(context.Context, time.Duration) error
}

// FromConfig builds a Policy from the environment-derived retry knobs.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Multiplier:  cfg.Multiplier,
		Jitter:      cfg.Jitter,
		MaxAttempts: cfg.MaxAttempts,
	}
}

// WithSleep returns a copy of the policy using the given sleeper. Tests use
// this to record delays instead of blocking.
func (p Policy) WithSleep(sleep func(context.Context, time.Duration) error) Policy {
	p.sleep = sleep
	return p
}

// Execute runs op, retrying per the policy while classify reports the
// failure as Retryable. Backoff delays block only this call. Exhausting
// MaxAttempts returns an ExhaustedError wrapping the last failure.
func (p Policy) Execute(ctx context.Context, classify Classifier, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if classify(err) == Terminal {
			return err
		}
		if attempt >= attempts {
			return &ExhaustedError{Attempts: attempts, Err: err}
		}
		if serr := sleep(ctx, p.delay(attempt)); serr != nil {
			return fmt.Errorf("retry interrupted: %w", serr)
		}
	}
}

// delay computes the backoff before the next attempt after `attempt` failed
// tries, with bounded exponential growth and proportional jitter.
func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}

	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
