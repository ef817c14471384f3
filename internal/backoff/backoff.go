package backoff

import (
	"errors"
	"math/rand"
	"time"
)

// ErrRetriesExhausted is returned by a Retrier when the attempt limit
// has been reached.
var ErrRetriesExhausted = errors.New("retry attempts exhausted")

// Policy controls the interval sequence produced by a Retrier.
type Policy struct {
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// BackoffFactor multiplies the interval after each attempt.
	BackoffFactor float64
	// MaxInterval caps the computed interval. Zero means no cap.
	MaxInterval time.Duration
	// MaxRetries is the number of retries allowed. Zero disables retrying.
	MaxRetries int
	// Jitter adds up to the given fraction of random spread to each interval.
	Jitter float64
}

// DefaultPolicy matches the bounded retry used for transient connector
// errors: three attempts with exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     10 * time.Second,
		MaxRetries:      3,
		Jitter:          0.1,
	}
}

// Retrier tracks attempts against a Policy.
type Retrier struct {
	policy   Policy
	attempt  int
	interval time.Duration
}

func NewRetrier(policy Policy) *Retrier {
	return &Retrier{policy: policy, interval: policy.InitialInterval}
}

// Next returns the interval to wait before the next attempt, or
// ErrRetriesExhausted when no attempts remain.
func (r *Retrier) Next() (time.Duration, error) {
	if r.attempt >= r.policy.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	r.attempt++

	interval := r.interval
	next := time.Duration(float64(r.interval) * r.policy.BackoffFactor)
	if r.policy.MaxInterval > 0 && next > r.policy.MaxInterval {
		next = r.policy.MaxInterval
	}
	r.interval = next

	if r.policy.Jitter > 0 {
		spread := time.Duration(rand.Float64() * r.policy.Jitter * float64(interval))
		interval += spread
	}
	return interval, nil
}

// Attempts returns the number of retries consumed so far.
func (r *Retrier) Attempts() int {
	return r.attempt
}
