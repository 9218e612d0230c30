package clients

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy describes an exponential backoff: the first retry waits
// BaseDelay, each following retry doubles the wait up to MaxDelay, and at
// most MaxRetries retries are made after the initial attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// BackOff builds a deterministic (no jitter) backoff bound to ctx.
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = p.BaseDelay
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Retry runs op under the policy. op marks non-retryable failures with
// backoff.Permanent; the unwrapped error is returned in that case.
func (p RetryPolicy) Retry(ctx context.Context, op func() error, notify func(err error, wait time.Duration)) error {
	return backoff.RetryNotify(op, p.BackOff(ctx), notify)
}
