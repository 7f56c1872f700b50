package config

import "time"

// RateLimitConfig controls the login attempt limiter.  Attempts are counted
// per client IP and login inside a fixed window of length Window; once
// MaxAttempts is exceeded further logins are rejected until the window key
// expires in Redis.
type RateLimitConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
	Prefix      string
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:     envBool("LOGIN_RATE_LIMIT_ENABLED", true),
		MaxAttempts: envInt("LOGIN_RATE_LIMIT_MAX_ATTEMPTS", 10),
		Window:      envDur("LOGIN_RATE_LIMIT_WINDOW", time.Minute),
		Prefix:      envStr("LOGIN_RATE_LIMIT_PREFIX", "rl:login"),
	}
	if def.MaxAttempts < 1 {
		def.MaxAttempts = 1
	}
	if def.Window < time.Second {
		def.Window = time.Second
	}
	return def
}
