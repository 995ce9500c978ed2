// Package ratelimit throttles failed login attempts with Redis counters.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/auth-service/internal/domain"
)

const loginKeyPrefix = "login_failures:"

// LoginLimiter enforces a fixed-window budget of failed logins per email.
// The budget applies whether or not the email belongs to an account.
type LoginLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	window      time.Duration
}

// NewLoginLimiter returns a limiter; maxAttempts <= 0 disables it.
func NewLoginLimiter(client redis.UniversalClient, maxAttempts int, window time.Duration) *LoginLimiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginLimiter{redis: client, maxAttempts: maxAttempts, window: window}
}

func (l *LoginLimiter) enabled() bool {
	return l != nil && l.redis != nil && l.maxAttempts > 0
}

// Check returns domain.ErrTooManyAttempts once the window budget is spent.
func (l *LoginLimiter) Check(ctx context.Context, email string) error {
	if !l.enabled() {
		return nil
	}
	count, err := l.redis.Get(ctx, loginKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return domain.NewStoreError("check login attempts", err)
	}
	if count >= int64(l.maxAttempts) {
		return domain.ErrTooManyAttempts
	}
	return nil
}

// RecordFailure counts a failed attempt. The window starts at the first failure.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email string) error {
	if !l.enabled() {
		return nil
	}
	key := loginKey(email)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return domain.NewStoreError("record login failure", err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return domain.NewStoreError("record login failure", err)
		}
	}
	return nil
}

// Reset clears the counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, email string) error {
	if !l.enabled() {
		return nil
	}
	if err := l.redis.Del(ctx, loginKey(email)).Err(); err != nil {
		return domain.NewStoreError("reset login attempts", err)
	}
	return nil
}

// loginKey hashes the email so raw addresses never appear in Redis.
func loginKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("%s%s", loginKeyPrefix, hex.EncodeToString(sum[:]))
}
