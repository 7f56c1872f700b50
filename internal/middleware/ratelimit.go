package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/identity-service/internal/config"
)

// Counter is a fixed-window counter.  repository.KVStore satisfies it.
type Counter interface {
	IncrementOrInit(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

const maxPeekBody = 64 << 10

// LoginRateLimit caps login attempts per client IP and login within
// cfg.Window.  When the counter store fails the request is let through.
func LoginRateLimit(cfg config.RateLimitConfig, counter Counter, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || counter == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := loginRateKey(cfg.Prefix, c)
			n, err := counter.IncrementOrInit(c.Request().Context(), key, cfg.Window)
			if err != nil {
				log.Warn("ratelimit: counter unavailable, allowing request", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			remaining := int64(cfg.MaxAttempts) - n
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxAttempts))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if n > int64(cfg.MaxAttempts) {
				secs := int(math.Ceil(cfg.Window.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				log.Info("ratelimit: blocked", zap.String("key", key), zap.Int64("count", n))
				return c.JSON(http.StatusTooManyRequests, echo.Map{"detail": "too many login attempts"})
			}
			return next(c)
		}
	}
}

// loginRateKey builds <prefix>:ip:<ip>:login:<login>.  The body is read
// for the login and then restored for the handler.
func loginRateKey(prefix string, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	login := "-"
	req := c.Request()
	if req.Body != nil {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxPeekBody))
		if err == nil {
			req.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), req.Body))
			var peek struct {
				Login string `json:"login"`
			}
			if json.Unmarshal(body, &peek) == nil && strings.TrimSpace(peek.Login) != "" {
				login = strings.ToLower(strings.TrimSpace(peek.Login))
			}
		}
	}
	return strings.Join([]string{prefix, "ip", ip, "login", login}, ":")
}
