package config

import (
	"time"

	"github.com/iliyamo/identity-service/internal/retry"
)

// RetryConfig is the backoff budget applied to every store call: the first
// retry waits Initial, each following wait is multiplied by Factor and
// capped at Max.  After Attempts failed tries the store is reported as
// unavailable.
type RetryConfig struct {
	Initial  time.Duration
	Factor   float64
	Max      time.Duration
	Attempts int
}

func LoadRetryConfig() RetryConfig {
	c := RetryConfig{
		Initial:  envDur("STORE_RETRY_INITIAL", 50*time.Millisecond),
		Factor:   envFloat("STORE_RETRY_FACTOR", 2),
		Max:      envDur("STORE_RETRY_MAX", 2*time.Second),
		Attempts: envInt("STORE_RETRY_ATTEMPTS", 5),
	}
	if c.Factor < 1 {
		c.Factor = 1
	}
	if c.Attempts < 1 {
		c.Attempts = 1
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	return c
}

// Policy builds the retry policy for the store called name.  The store
// supplies its own Retryable classifier.
func (c RetryConfig) Policy(name string) retry.Policy {
	return retry.Policy{
		Name:     name,
		Attempts: c.Attempts,
		Backoff:  retry.Backoff{Initial: c.Initial, Factor: c.Factor, Max: c.Max},
	}
}
