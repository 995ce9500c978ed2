package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/ratelimit"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/worker"
)

var testRSAKey = sync.OnceValue(func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
})

type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*domain.User{}, byEmail: map[string]string{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return domain.ErrEmailTaken
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	id, ok := r.byEmail[email]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *fakeUserRepo) setRole(id string, role domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].Role = role
}

func (r *fakeUserRepo) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byEmail, r.byID[id].Email)
	delete(r.byID, id)
}

type fixture struct {
	svc      *AuthService
	users    *fakeUserRepo
	store    repository.RefreshTokenRepository
	tokens   *auth.TokenManager
	recorded []events.Event
	mu       sync.Mutex
}

func (f *fixture) eventTypes() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]events.EventType, 0, len(f.recorded))
	for _, e := range f.recorded {
		types = append(types, e.Type)
	}
	return types
}

func newFixture(t *testing.T, limiter AttemptLimiter) *fixture {
	t.Helper()
	return newFixtureWithStore(t, limiter, repository.NewInMemoryRefreshTokenRepository())
}

func newFixtureWithStore(t *testing.T, limiter AttemptLimiter, store repository.RefreshTokenRepository) *fixture {
	t.Helper()

	keys, err := auth.NewKeyMaterial(testRSAKey(), []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	tokens := auth.NewTokenManager(keys, store, auth.TokenConfig{
		Issuer:     "auth-service",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	pool, err := worker.NewHashPool(auth.NewPasswordHasher(bcrypt.MinCost), 4)
	require.NoError(t, err)

	f := &fixture{users: newFakeUserRepo(), store: store, tokens: tokens}
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(func(_ context.Context, e events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.recorded = append(f.recorded, e)
		return nil
	},
		events.EventUserRegistered,
		events.EventUserLoggedIn,
		events.EventLoginFailed,
		events.EventTokenRefreshed,
		events.EventTokenRevoked,
	)

	f.svc = NewAuthService(AuthDependencies{
		UserRepo:     f.users,
		TokenManager: tokens,
		Credentials:  pool,
		Limiter:      limiter,
		Dispatcher:   dispatcher,
		Logger:       zap.NewNop(),
	})
	return f
}

var alice = RegisterInput{
	FirstName: "Alice",
	LastName:  "Liddell",
	Email:     "alice@example.com",
	Password:  "password123",
}

func TestRegister_IssuesWorkingPair(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pair, err := f.svc.Register(ctx, alice)
	require.NoError(t, err)
	require.NotEmpty(t, pair.UserID)

	access, err := f.tokens.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.UserID, access.Subject)
	assert.Equal(t, domain.RoleCustomer, access.Role)

	refresh, err := f.tokens.ValidateRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	ok, err := f.store.Exists(ctx, refresh.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	user, err := f.users.GetByID(ctx, pair.UserID)
	require.NoError(t, err)
	assert.NotEqual(t, alice.Password, user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(alice.Password)))

	assert.Equal(t, []events.EventType{events.EventUserRegistered}, f.eventTypes())
}

func TestRegister_NormalizesEmail(t *testing.T) {
	f := newFixture(t, nil)
	input := alice
	input.Email = "  Alice@Example.COM "
	input.FirstName = " Alice "

	pair, err := f.svc.Register(context.Background(), input)
	require.NoError(t, err)

	user, err := f.users.GetByID(context.Background(), pair.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice", user.FirstName)
}

func TestRegister_EmailTaken(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Register(context.Background(), alice)
	require.NoError(t, err)

	again := alice
	again.Email = "ALICE@example.com"
	_, err = f.svc.Register(context.Background(), again)
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestLogin_Succeeds(t *testing.T) {
	f := newFixture(t, nil)
	registered, err := f.svc.Register(context.Background(), alice)
	require.NoError(t, err)

	pair, err := f.svc.Login(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.UserID, pair.UserID)
	assert.NotEqual(t, registered.RefreshToken, pair.RefreshToken)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Register(context.Background(), alice)
	require.NoError(t, err)

	_, unknownErr := f.svc.Login(context.Background(), "nobody@example.com", "password123")
	_, wrongErr := f.svc.Login(context.Background(), "alice@example.com", "password124")

	require.ErrorIs(t, unknownErr, domain.ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, domain.ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())

	types := f.eventTypes()
	assert.Equal(t, []events.EventType{
		events.EventUserRegistered,
		events.EventLoginFailed,
		events.EventLoginFailed,
	}, types)
}

func TestLogin_Throttled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, ratelimit.NewLoginLimiter(client, 2, time.Minute))
	ctx := context.Background()
	_, err := f.svc.Register(ctx, alice)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(ctx, "alice@example.com", "nope-nope")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}

	_, err = f.svc.Login(ctx, "alice@example.com", "password123")
	assert.ErrorIs(t, err, domain.ErrTooManyAttempts)

	mr.FastForward(time.Minute + time.Second)
	_, err = f.svc.Login(ctx, "alice@example.com", "password123")
	assert.NoError(t, err)
}

type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, string) error {
	return domain.NewStoreError("check login attempts", errors.New("redis down"))
}
func (brokenLimiter) RecordFailure(context.Context, string) error { return nil }
func (brokenLimiter) Reset(context.Context, string) error         { return nil }

func TestLogin_LimiterFailsOpen(t *testing.T) {
	f := newFixture(t, brokenLimiter{})
	_, err := f.svc.Register(context.Background(), alice)
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), "alice@example.com", "password123")
	assert.NoError(t, err)
}

func TestSelf_ReturnsSanitizedUser(t *testing.T) {
	f := newFixture(t, nil)
	pair, err := f.svc.Register(context.Background(), alice)
	require.NoError(t, err)
	claims, err := f.tokens.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)

	user, err := f.svc.Self(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, pair.UserID, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Empty(t, user.PasswordHash)

	_, err = f.svc.Self(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pair, err := f.svc.Register(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken))

	_, err = f.tokens.ValidateRefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrRevokedToken)

	// A second logout with the same token changes nothing.
	assert.ErrorIs(t, f.svc.Logout(ctx, pair.RefreshToken), domain.ErrRevokedToken)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrRevokedToken)

	assert.Contains(t, f.eventTypes(), events.EventTokenRevoked)
}

func TestLogout_OtherSessionsSurvive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first, err := f.svc.Register(ctx, alice)
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, alice.Email, alice.Password)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, first.RefreshToken))

	_, err = f.tokens.ValidateRefreshToken(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_RotatesAndPicksUpRoleChange(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pair, err := f.svc.Register(ctx, alice)
	require.NoError(t, err)

	f.users.setRole(pair.UserID, domain.RoleManager)

	rotated, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	claims, err := f.tokens.ParseAccessToken(rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, claims.Role)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrRevokedToken)

	_, err = f.tokens.ValidateRefreshToken(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_DeletedAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pair, err := f.svc.Register(ctx, alice)
	require.NoError(t, err)

	f.users.remove(pair.UserID)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRefresh_InvalidToken(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Refresh(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

// rendezvousStore holds every Get until `parties` callers have arrived, so
// concurrent rotations all pass validation before any of them revokes.
type rendezvousStore struct {
	repository.RefreshTokenRepository
	parties int

	mu      sync.Mutex
	arrived int
	ready   chan struct{}
}

func newRendezvousStore(parties int) *rendezvousStore {
	return &rendezvousStore{
		RefreshTokenRepository: repository.NewInMemoryRefreshTokenRepository(),
		parties:                parties,
		ready:                  make(chan struct{}),
	}
}

func (s *rendezvousStore) Get(ctx context.Context, id string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	s.arrived++
	if s.arrived == s.parties {
		close(s.ready)
	}
	s.mu.Unlock()

	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.RefreshTokenRepository.Get(ctx, id)
}

func TestRefresh_ConcurrentRotationSucceedsOnce(t *testing.T) {
	const callers = 2
	store := newRendezvousStore(callers)
	f := newFixtureWithStore(t, nil, store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Register issues its pair without a Get, so the rendezvous is untouched.
	pair, err := f.svc.Register(ctx, alice)
	require.NoError(t, err)

	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(ctx, pair.RefreshToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrRevokedToken)
	}
	assert.Equal(t, 1, succeeded)

	refreshed := 0
	for _, typ := range f.eventTypes() {
		if typ == events.EventTokenRefreshed {
			refreshed++
		}
	}
	assert.Equal(t, 1, refreshed)
}

func TestLogout_ConcurrentLogoutRevokesOnce(t *testing.T) {
	const callers = 2
	store := newRendezvousStore(callers)
	f := newFixtureWithStore(t, nil, store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair, err := f.svc.Register(ctx, alice)
	require.NoError(t, err)

	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.Logout(ctx, pair.RefreshToken)
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrRevokedToken)
	}
	assert.Equal(t, 1, succeeded)
}
