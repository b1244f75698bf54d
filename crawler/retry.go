package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/jing2uo/rufeng/source"
	"github.com/jpillora/backoff"
)

// RetryPolicy describes how a failed fetch is retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Factor      float64
	Jitter      bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Second,
		MaxBackoff:  10 * time.Second,
		Factor:      2,
	}
}

// Permanent reports errors that no retry can fix.
func Permanent(err error) bool {
	return errors.Is(err, source.ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Do runs fn until it succeeds, fails permanently or MaxAttempts is used up.
// It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := &backoff.Backoff{
		Min:    p.Backoff,
		Max:    p.MaxBackoff,
		Factor: p.Factor,
		Jitter: p.Jitter,
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if attempt >= maxAttempts || Permanent(err) {
			return attempt, err
		}

		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
