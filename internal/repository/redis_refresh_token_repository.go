package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/auth-service/internal/domain"
)

const refreshKeyPrefix = "refresh_token:"

type redisRefreshRecord struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type redisRefreshTokenRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisRefreshTokenRepository stores each record under its own key with a
// TTL ending at the record's expiry, so Redis reaps expired records itself.
func NewRedisRefreshTokenRepository(client redis.UniversalClient) RefreshTokenRepository {
	return &redisRefreshTokenRepository{client: client, now: time.Now}
}

func (r *redisRefreshTokenRepository) Create(ctx context.Context, userID string, expiresAt time.Time) (*domain.RefreshToken, error) {
	now := r.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil, fmt.Errorf("refresh token expiry %s is not in the future", expiresAt.Format(time.RFC3339))
	}

	record := redisRefreshRecord{UserID: userID, ExpiresAt: expiresAt.UTC(), CreatedAt: now.UTC()}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode refresh token: %w", err)
	}

	id := uuid.NewString()
	created, err := r.client.SetNX(ctx, refreshKey(id), payload, ttl).Result()
	if err != nil {
		return nil, domain.NewStoreError("create refresh token", err)
	}
	if !created {
		return nil, domain.NewStoreError("create refresh token", errors.New("id collision"))
	}

	return &domain.RefreshToken{
		ID:        id,
		UserID:    userID,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
	}, nil
}

func (r *redisRefreshTokenRepository) Get(ctx context.Context, id string) (*domain.RefreshToken, error) {
	payload, err := r.client.Get(ctx, refreshKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStoreError("get refresh token", err)
	}

	var record redisRefreshRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, domain.NewStoreError("decode refresh token", err)
	}
	return &domain.RefreshToken{
		ID:        id,
		UserID:    record.UserID,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
	}, nil
}

func (r *redisRefreshTokenRepository) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, refreshKey(id)).Result()
	if err != nil {
		return false, domain.NewStoreError("refresh token exists", err)
	}
	return n == 1, nil
}

func (r *redisRefreshTokenRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, refreshKey(id)).Err(); err != nil {
		return domain.NewStoreError("delete refresh token", err)
	}
	return nil
}

func (r *redisRefreshTokenRepository) Revoke(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Del(ctx, refreshKey(id)).Result()
	if err != nil {
		return false, domain.NewStoreError("revoke refresh token", err)
	}
	return n == 1, nil
}

// DeleteExpired is a no-op: key TTLs already remove expired records.
func (r *redisRefreshTokenRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func refreshKey(id string) string {
	return refreshKeyPrefix + id
}
