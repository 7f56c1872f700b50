// Package retry runs store calls under an exponential backoff budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry budget exhausted")

// Backoff computes the wait before retry number attempt (zero based):
// Initial * Factor^attempt, capped at Max.
type Backoff struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
}

func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	f := b.Factor
	if f < 1 {
		f = 1
	}
	d := float64(b.Initial) * math.Pow(f, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}

type Policy struct {
	Name      string
	Attempts  int
	Backoff   Backoff
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
}

var (
	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_retry_attempts_total",
		Help: "Store call attempts, including the first one.",
	}, []string{"name"})
	retryExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_retry_exhausted_total",
		Help: "Store calls that failed after the whole retry budget.",
	}, []string{"name"})
	retryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_retry_duration_seconds",
		Help:    "Time spent inside retry.Do, success or failure.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})
)

// Do calls fn until it succeeds, returns a non-retryable error, the context
// ends, or Attempts calls have failed.  In the last case the returned error
// matches both ErrExhausted and the final error from fn.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	start := time.Now()
	name := p.Name
	if name == "" {
		name = "default"
	}
	defer func() { retryLatency.WithLabelValues(name).Observe(time.Since(start).Seconds()) }()

	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	isRetryable := p.Retryable
	if isRetryable == nil {
		isRetryable = func(err error) bool { return err != nil }
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		retryAttempts.WithLabelValues(name).Inc()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !isRetryable(err) {
			return err
		}
		if p.OnAttempt != nil {
			p.OnAttempt(i, err)
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(p.Backoff.Next(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	retryExhausted.WithLabelValues(name).Inc()
	return fmt.Errorf("%s: %w: %w", name, ErrExhausted, err)
}
