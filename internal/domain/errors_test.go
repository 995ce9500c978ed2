package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStoreErrorMatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("persist: %w", NewStoreError("create refresh token", cause))

	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "create refresh token")
}

func TestRefreshTokenExpired(t *testing.T) {
	now := time.Now()
	rt := &RefreshToken{ExpiresAt: now}
	assert.True(t, rt.Expired(now))
	assert.False(t, rt.Expired(now.Add(-time.Second)))
}

func TestUserSanitized(t *testing.T) {
	u := User{ID: "u1", Email: "a@example.com", PasswordHash: "$2a$secret", Role: RoleCustomer}
	s := u.Sanitized()
	assert.Empty(t, s.PasswordHash)
	assert.Equal(t, "$2a$secret", u.PasswordHash)
	assert.True(t, s.Role.Valid())
	assert.False(t, Role("root").Valid())
}
