package lambda

import (
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultMaxAttempts = 3
	defaultInitialWait = 1 * time.Second
	defaultMaxWait     = 15 * time.Second
)

// cappedBackOff is exponential backoff with jitter whose waits never exceed max.
// backoff.ExponentialBackOff caps the interval before jitter is applied, so
// a randomized wait can otherwise overshoot MaxInterval.
type cappedBackOff struct {
	inner *backoff.ExponentialBackOff
	max   time.Duration
}

func newBackOff(initial, max time.Duration) *cappedBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = max
	return &cappedBackOff{inner: b, max: max}
}

func (b *cappedBackOff) NextBackOff() time.Duration {
	next := b.inner.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if next > b.max {
		return b.max
	}
	return next
}

func (b *cappedBackOff) Reset() {
	b.inner.Reset()
}

// retryPolicy holds the immutable retry settings of a client
type retryPolicy struct {
	maxAttempts uint
	initialWait time.Duration
	maxWait     time.Duration
}

// options builds the per-call retry options. attempt is advanced by the
// operation itself and read here for logging.
func (p retryPolicy) options(attempt *int, onRetry func(attempt int, wait time.Duration, err error)) []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(newBackOff(p.initialWait, p.maxWait)),
		backoff.WithMaxTries(p.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Printf("Retrying: attempt %d failed, next attempt in %s: %v", *attempt, wait.Round(time.Millisecond), err)
			if onRetry != nil {
				onRetry(*attempt, wait, err)
			}
		}),
	}
}
