package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/auth-service/internal/domain"
)

// inMemoryRefreshTokenRepository keeps records in process memory. Records
// do not survive a restart, so it suits development and tests only.
type inMemoryRefreshTokenRepository struct {
	mu      sync.RWMutex
	records map[string]domain.RefreshToken
	now     func() time.Time
}

// NewInMemoryRefreshTokenRepository creates an empty in-memory store.
func NewInMemoryRefreshTokenRepository() RefreshTokenRepository {
	return &inMemoryRefreshTokenRepository{
		records: make(map[string]domain.RefreshToken),
		now:     time.Now,
	}
}

func (r *inMemoryRefreshTokenRepository) Create(_ context.Context, userID string, expiresAt time.Time) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	if _, exists := r.records[id]; exists {
		return nil, domain.NewStoreError("create refresh token", fmt.Errorf("id collision"))
	}
	record := domain.RefreshToken{ID: id, UserID: userID, ExpiresAt: expiresAt, CreatedAt: r.now()}
	r.records[id] = record
	return &record, nil
}

func (r *inMemoryRefreshTokenRepository) Get(_ context.Context, id string) (*domain.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (r *inMemoryRefreshTokenRepository) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.records[id]
	return ok, nil
}

func (r *inMemoryRefreshTokenRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, id)
	return nil
}

func (r *inMemoryRefreshTokenRepository) Revoke(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return false, nil
	}
	delete(r.records, id)
	return true, nil
}

func (r *inMemoryRefreshTokenRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, record := range r.records {
		if record.Expired(now) {
			delete(r.records, id)
			removed++
		}
	}
	return removed, nil
}
