package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/identity-service/internal/retry"
)

// incrScript increments a counter and gives it a TTL when it has none, so a
// window starts at the first hit and a key can never outlive it.
var incrScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if redis.call('PTTL', KEYS[1]) < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return n
`)

// casScript replaces the value of KEYS[1] only while it still equals ARGV[1].
var casScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
		return 1
	end
	return 0
`)

// KVStore is the expiring key-value store used for refresh token records,
// the access token blocklist and rate-limit counters.  All keys are
// namespaced with a prefix and every call runs under the retry policy.
type KVStore struct {
	rdb    redis.UniversalClient
	prefix string
	policy retry.Policy
	log    *zap.Logger
}

// NewKVStore wraps rdb.  prefix may be empty.
func NewKVStore(rdb redis.UniversalClient, prefix string, policy retry.Policy, log *zap.Logger) *KVStore {
	if log == nil {
		log = zap.NewNop()
	}
	if policy.Name == "" {
		policy.Name = "redis"
	}
	s := &KVStore{rdb: rdb, prefix: prefix, policy: policy, log: log}
	s.policy.Retryable = isTransientRedis
	return s
}

// SetWithExpiry stores value under key for ttl, replacing any previous value.
func (s *KVStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("set %s: ttl must be positive, got %s", key, ttl)
	}
	return s.do(ctx, "set", func(ctx context.Context) error {
		return s.rdb.Set(ctx, s.key(key), value, ttl).Err()
	})
}

// GetByKey returns the value under key and whether it exists.
func (s *KVStore) GetByKey(ctx context.Context, key string) (string, bool, error) {
	var (
		val   string
		found bool
	)
	err := s.do(ctx, "get", func(ctx context.Context) error {
		v, err := s.rdb.Get(ctx, s.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			val, found = "", false
			return nil
		}
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	return val, found, err
}

// IncrementOrInit increments the counter under key, creating it with the
// given ttl on first use, and returns the new count.
func (s *KVStore) IncrementOrInit(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, fmt.Errorf("incr %s: ttl must be positive, got %s", key, ttl)
	}
	var n int64
	err := s.do(ctx, "incr", func(ctx context.Context) error {
		var err error
		n, err = incrScript.Run(ctx, s.rdb, []string{s.key(key)}, ttl.Milliseconds()).Int64()
		return err
	})
	return n, err
}

// CompareAndSwap atomically replaces the value under key with value (and a
// fresh ttl) only if the current value equals expected.  It reports whether
// the swap happened; a missing key never swaps.
func (s *KVStore) CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("cas %s: ttl must be positive, got %s", key, ttl)
	}
	var swapped bool
	err := s.do(ctx, "cas", func(ctx context.Context) error {
		n, err := casScript.Run(ctx, s.rdb, []string{s.key(key)}, expected, value, ttl.Milliseconds()).Int64()
		if err != nil {
			return err
		}
		swapped = n == 1
		return nil
	})
	return swapped, err
}

// Delete removes key.  Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	return s.do(ctx, "del", func(ctx context.Context) error {
		return s.rdb.Del(ctx, s.key(key)).Err()
	})
}

// Ping checks connectivity without retrying.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *KVStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *KVStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	p := s.policy
	p.Name = s.policy.Name + "_" + op
	p.OnAttempt = func(attempt int, err error) {
		s.log.Warn("kv store call failed", zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	err := retry.Do(ctx, p, fn)
	if errors.Is(err, retry.ErrExhausted) {
		s.log.Error("kv store unavailable", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

// Server replies that mean "try again later"; every other error reply is
// permanent.
var transientReplies = []string{"LOADING", "READONLY", "CLUSTERDOWN", "TRYAGAIN", "MASTERDOWN"}

func isTransientRedis(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		for _, p := range transientReplies {
			if strings.HasPrefix(msg, p) {
				return true
			}
		}
		return false
	}
	return true
}
