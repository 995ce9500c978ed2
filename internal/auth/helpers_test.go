package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-service/internal/repository"
)

var testRefreshSecret = []byte("0123456789abcdef0123456789abcdef")

// sharedRSAKey is generated once; tests that call Destroy must use freshRSAKey.
var sharedRSAKey = sync.OnceValue(func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
})

func freshRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func newTestKeys(t *testing.T) *KeyMaterial {
	t.Helper()
	km, err := NewKeyMaterial(sharedRSAKey(), testRefreshSecret)
	require.NoError(t, err)
	return km
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTokenManager(t *testing.T, clock *testClock) (*TokenManager, RefreshTokenStore) {
	t.Helper()
	store := repository.NewInMemoryRefreshTokenRepository()
	tm := NewTokenManager(newTestKeys(t), store, TokenConfig{
		Issuer:     "auth-service",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		Now:        clock.Now,
	})
	return tm, store
}
