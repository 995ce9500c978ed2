package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/config"
)

// ErrRedisDisabled is returned by Ping when no address is configured.
var ErrRedisDisabled = errors.New("redis not configured")

// Redis holds the optional Redis client shared by the login limiter and
// the Redis refresh token store.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis builds a client from cfg. An empty address leaves Redis disabled.
// An unreachable server is logged, not fatal; readiness reports it.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	addrs := splitAddrs(cfg.Addr)
	if len(addrs) == 0 {
		logger.Warn("REDIS_ADDR not provided; redis disabled")
		return &Redis{}
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Strings("addrs", addrs), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.Strings("addrs", addrs))
	}

	return &Redis{client: client}
}

func splitAddrs(raw string) []string {
	var addrs []string
	for _, addr := range strings.Split(raw, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// Client returns the client, or nil when Redis is disabled. The result is
// an untyped nil in that case, so callers may compare it against nil.
func (r *Redis) Client() redis.UniversalClient {
	if r == nil {
		return nil
	}
	return r.client
}

// Enabled reports whether a client is configured.
func (r *Redis) Enabled() bool {
	return r.Client() != nil
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return ErrRedisDisabled
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.client.Close()
	}
}
