package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// Category groups driver errors by how the policy treats them.
type Category int

const (
	Other Category = iota
	WriteTimeout
	ReadTimeout
	Unavailable
)

func (c Category) String() string {
	switch c {
	case WriteTimeout:
		return "write_timeout"
	case ReadTimeout:
		return "read_timeout"
	case Unavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// Classify maps a driver error to its Category.
func Classify(err error) Category {
	var (
		writeTimeout *gocql.RequestErrWriteTimeout
		readTimeout  *gocql.RequestErrReadTimeout
		unavailable  *gocql.RequestErrUnavailable
	)
	switch {
	case err == nil:
		return Other
	case errors.As(err, &writeTimeout), errors.Is(err, gocql.ErrTimeoutNoResponse):
		return WriteTimeout
	case errors.As(err, &readTimeout):
		return ReadTimeout
	case errors.As(err, &unavailable):
		return Unavailable
	default:
		return Other
	}
}

// ExhaustedError is returned once the attempt budget is spent.
type ExhaustedError struct {
	Attempts int
	Category Category
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts (%s): %v", e.Attempts, e.Category, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Policy retries write timeouts, and optionally unavailable errors, with a
// bounded number of attempts and a growing delay. Any other error is
// returned as soon as it happens.
type Policy struct {
	config  Config
	sleep   func(ctx context.Context, d time.Duration) error
	OnRetry func(attempt int, category Category, delay time.Duration, err error)
}

func NewPolicy(config Config) (*Policy, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return &Policy{config: config, sleep: sleepContext}, nil
}

func (p *Policy) retryable(c Category) bool {
	switch c {
	case WriteTimeout:
		return true
	case Unavailable:
		return p.config.RetryUnavailable
	default:
		return false
	}
}

// Do runs fn until it succeeds, fails with an error outside the policy, or
// the attempt budget runs out. fn is re-run unchanged, so the request keeps
// its consistency level across attempts.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		category := Classify(err)
		if !p.retryable(category) {
			return err
		}
		if attempt >= p.config.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Category: category, Err: err}
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, category, delay, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry interrupted: %w", err)
		}
	}
}

// WithOnRetry returns a copy of p whose OnRetry is fn. p is left unchanged,
// so one policy can seed several callers with their own hooks.
func (p *Policy) WithOnRetry(fn func(attempt int, category Category, delay time.Duration, err error)) *Policy {
	c := *p
	c.OnRetry = fn
	return &c
}

// Delay returns the wait after the given failed attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	delay := float64(p.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.config.Multiplier
		if delay >= float64(p.config.MaxDelay) {
			return p.config.MaxDelay
		}
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
