package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-booking/internal/config"
)

// takeToken refills the bucket stored in the hash at KEYS[1] for the
// whole intervals elapsed since the last refill, then tries to take one
// token.  ARGV: now_ms, capacity, refill_tokens, interval_ms, ttl_ms.
// Returns {allowed, tokens_left, retry_after_ms}.
var takeToken = redis.NewScript(`
local now, capacity = tonumber(ARGV[1]), tonumber(ARGV[2])
local refill, interval, ttl = tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local last = tonumber(redis.call('HGET', KEYS[1], 'last_refill_ms'))
if not tokens or not last then
	tokens, last = capacity, now
end

if interval > 0 and refill > 0 and now > last then
	local n = math.floor((now - last) / interval)
	if n > 0 then
		tokens = math.min(capacity, tokens + n * refill)
		last = last + n * interval
	end
end

local allowed, wait = 0, 0
if tokens >= 1 then
	allowed, tokens = 1, tokens - 1
else
	wait = math.max(0, interval - (now - last))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last_refill_ms', last)
redis.call('PEXPIRE', KEYS[1], ttl)
return { allowed, tokens, wait }
`)

// verdict is the limiter's answer for one request.
type verdict struct {
	allowed    bool
	remaining  int64
	retryAfter time.Duration
}

type bucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
}

func (b bucket) take(ctx context.Context, key string, now time.Time) (verdict, error) {
	res, err := takeToken.Run(ctx, b.rdb, []string{key},
		now.UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		b.cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return verdict{}, err
	}
	if len(res) != 3 {
		return verdict{}, errors.New("ratelimit: unexpected script reply")
	}
	return verdict{
		allowed:    res[0] == 1,
		remaining:  res[1],
		retryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket limits requests per key with a Redis token bucket.  A
// disabled config or a nil client yields a pass-through middleware, and
// Redis errors let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *slog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	b := bucket{cfg: cfg, rdb: rdb}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			v, err := b.take(c.Request().Context(), key, time.Now())
			if err != nil {
				log.Warn("ratelimit: allowing request", "key", key, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if v.allowed {
				return next(c)
			}

			secs := int((v.retryAfter + time.Second - 1) / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				log.Info("ratelimit: blocked", "key", key, "retry_after", v.retryAfter)
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// keyParts lists, per strategy, which request attributes make up the key.
var keyParts = map[string][]string{
	"ip":         {"ip"},
	"user":       {"user"},
	"route":      {"route"},
	"ip_user":    {"ip", "user"},
	"ip_route":   {"ip", "route"},
	"user_route": {"user", "route"},
}

// buildRateKey joins the configured prefix with name:value pairs for the
// strategy's attributes.  Unknown strategies key on ip, user and route.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts, ok := keyParts[strings.ToLower(cfg.KeyStrategy)]
	if !ok {
		parts = []string{"ip", "user", "route"}
	}
	out := []string{cfg.Prefix}
	for _, p := range parts {
		out = append(out, p, rateKeyValue(p, c))
	}
	return strings.Join(out, ":")
}

func rateKeyValue(part string, c echo.Context) string {
	switch part {
	case "ip":
		if ip := c.RealIP(); ip != "" {
			return ip
		}
		return "unknown"
	case "user":
		return userID(c)
	default:
		return c.Request().Method + " " + c.Path()
	}
}
