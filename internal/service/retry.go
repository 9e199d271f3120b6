package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/timmy/textfleet/internal/storage"
)

// RetryPolicy bounds retries of transient queue, store and fleet calls.
type RetryPolicy struct {
	Retries uint64
	Base    time.Duration
	Max     time.Duration
}

// DefaultRetryPolicy retries 4 times starting at 200ms, capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 4, Base: 200 * time.Millisecond, Max: 5 * time.Second}
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.Max > 0 {
		b = retry.WithCappedDuration(p.Max, b)
	}
	return retry.WithMaxRetries(p.Retries, b)
}

// do runs op until it succeeds, fails permanently or retries run out.
func (p RetryPolicy) do(ctx context.Context, op func(ctx context.Context) error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := op(ctx)
		if err == nil || permanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func permanent(err error) bool {
	return storage.IsNotFound(err) ||
		errors.Is(err, storage.ErrAccessDenied) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
