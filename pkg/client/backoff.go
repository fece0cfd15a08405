package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy describes an exponential retry schedule. A zero MaxElapsedTime
// retries until the context is done.
type BackoffPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

func (p BackoffPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.MaxElapsedTime
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// Retry runs op until it succeeds, returns a Permanent error, the policy gives up,
// or ctx is done. notify is called before every sleep and may be nil.
func (p BackoffPolicy) Retry(ctx context.Context, op func() error, notify func(err error, next time.Duration)) error {
	return backoff.RetryNotify(op, p.newBackOff(ctx), notify)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
