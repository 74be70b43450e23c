package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig configures one Redis token bucket.  Capacity tokens
// are available at once and RefillTokens come back every RefillInterval.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig reads the bucket for scope.  Scope "" reads
// RATE_LIMIT_*; any other scope reads <SCOPE>_RATE_LIMIT_* and falls back
// to the unscoped variable, so "RESERVE" can tighten reservation writes
// without repeating every setting.  The key prefix is the exception: a
// scoped bucket never shares keys with the global one.
func LoadRateLimitConfig(scope string) RateLimitConfig {
	e := scopedEnv(scope)
	def := RateLimitConfig{
		Enabled:        e.boolean("RATE_LIMIT_ENABLED", true),
		Capacity:       e.integer("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   e.integer("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: e.duration("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            e.duration("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    e.str("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         rateLimitPrefix(scope),
		Debug:          e.boolean("RATE_LIMIT_DEBUG", false),
	}
	if b := e.integer("RATE_LIMIT_BURST", -1); b > 0 {
		def.Capacity = b
	}
	if every := e.duration("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
		def.RefillTokens = 1
		def.RefillInterval = every
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}

// rateLimitPrefix returns <SCOPE>_RATE_LIMIT_PREFIX when set, otherwise
// the global prefix with the lower-cased scope appended.
func rateLimitPrefix(scope string) string {
	base := envStr("RATE_LIMIT_PREFIX", "rl")
	if scope == "" {
		return base
	}
	if v := os.Getenv(scope + "_RATE_LIMIT_PREFIX"); v != "" {
		return v
	}
	return base + ":" + strings.ToLower(scope)
}

type scopedEnv string

func (s scopedEnv) lookup(k string) string {
	if s != "" {
		if v := os.Getenv(string(s) + "_" + k); v != "" {
			return v
		}
	}
	return os.Getenv(k)
}

func (s scopedEnv) str(k, d string) string {
	if v := s.lookup(k); v != "" {
		return v
	}
	return d
}

func (s scopedEnv) boolean(k string, d bool) bool {
	switch s.lookup(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func (s scopedEnv) integer(k string, d int) int {
	if n, err := strconv.Atoi(s.lookup(k)); err == nil {
		return n
	}
	return d
}

func (s scopedEnv) duration(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(s.lookup(k)); err == nil {
		return dur
	}
	return d
}

func envStr(k, d string) string                      { return scopedEnv("").str(k, d) }
func envInt(k string, d int) int                     { return scopedEnv("").integer(k, d) }
func envDur(k string, d time.Duration) time.Duration { return scopedEnv("").duration(k, d) }
