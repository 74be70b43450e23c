package config

// This file defines a Redis client constructor for the application.  Redis is
// used for flash messages and distributed rate limiting.  The client
// parameters are loaded from environment variables.  If connection fails
// during startup, the function returns nil and callers should degrade
// gracefully by dropping flash messages and disabling rate limiting.

import (
    "context"
    "crypto/tls"
    "log/slog"
    "net"
    "os"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from the environment.
// Supported variables are:
//   REDIS_URL – redis:// or rediss:// URL (takes precedence over the rest)
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
func RedisOptions() (*redis.Options, error) {
    if u := os.Getenv("REDIS_URL"); u != "" {
        return redis.ParseURL(u)
    }
    opts := &redis.Options{
        Addr:     envStr("REDIS_ADDR", "localhost:6379"),
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       envInt("REDIS_DB", 0),
    }
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        opts.Addr = net.JoinHostPort(host, port)
    }
    if scopedEnv("").boolean("REDIS_TLS", false) {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return opts, nil
}

// NewRedisClient connects to Redis and pings it with a short timeout.
// The returned client is nil if a connection cannot be established.
func NewRedisClient(log *slog.Logger) *redis.Client {
    opts, err := RedisOptions()
    if err != nil {
        log.Warn("redis: bad configuration; running without redis", "error", err)
        return nil
    }
    client := redis.NewClient(opts)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.Warn("redis: unreachable; running without redis", "addr", opts.Addr, "error", err)
        _ = client.Close()
        return nil
    }
    return client
}
