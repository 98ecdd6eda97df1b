// Package retry wraps outbound network calls in exponential backoff with
// jitter. Only transient failures are retried; flood control pauses for the
// provider-mandated interval instead of the computed backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/untoldecay/shelfbot/internal/messenger"
)

// Policy bounds a retried operation: at most Attempts tries, the first wait
// around InitialWait, individual waits capped at MaxWait.
type Policy struct {
	Attempts    int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultPolicy mirrors the service defaults (3 tries, waits up to 30s).
var DefaultPolicy = Policy{Attempts: 3, MaxWait: 30 * time.Second}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.MaxWait <= 0 {
		p.MaxWait = 30 * time.Second
	}
	if p.InitialWait <= 0 {
		p.InitialWait = time.Second
	}
	if p.InitialWait > p.MaxWait {
		p.InitialWait = p.MaxWait
	}
	return p
}

// newBackOff returns a fresh stateful BackOff per operation.
func newBackOff(ctx context.Context, p Policy) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialWait
	bo.MaxInterval = p.MaxWait
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.Attempts-1)), ctx)
}

// Do runs op under the policy. Non-transient errors abort immediately; a
// FloodError sleeps for its RetryAfter before the next try.
func Do(ctx context.Context, p Policy, op func() error) error {
	p = p.normalized()
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var flood *messenger.FloodError
		if errors.As(err, &flood) {
			select {
			case <-time.After(flood.RetryAfter):
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if messenger.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, newBackOff(ctx, p))
}
