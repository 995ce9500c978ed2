package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/repository"
)

// Credentials hashes and verifies passwords, bounded by the caller's context.
type Credentials interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) (bool, error)
	VerifyDummy(ctx context.Context, password string) error
}

// AttemptLimiter throttles failed logins per email.
type AttemptLimiter interface {
	Check(ctx context.Context, email string) error
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// AuthService coordinates registration, login and refresh token lifecycle.
type AuthService struct {
	users       repository.UserRepository
	tokens      *auth.TokenManager
	credentials Credentials
	limiter     AttemptLimiter
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// AuthDependencies bundles collaborators for the auth service. Limiter and
// Dispatcher are optional.
type AuthDependencies struct {
	UserRepo     repository.UserRepository
	TokenManager *auth.TokenManager
	Credentials  Credentials
	Limiter      AttemptLimiter
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// RegisterInput describes a new account.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       deps.UserRepo,
		tokens:      deps.TokenManager,
		credentials: deps.Credentials,
		limiter:     deps.Limiter,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// Register creates a customer account and logs it in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.TokenPair, error) {
	email := normalizeEmail(input.Email)

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := s.credentials.Hash(ctx, input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
	}
	// A concurrent registration for the same email loses here with ErrEmailTaken.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	event := events.NewEvent(events.EventUserRegistered)
	event.UserID = user.ID
	event.Email = user.Email
	s.publish(ctx, event)
	return pair, nil
}

// Login authenticates by email and password. Unknown emails and wrong
// passwords both yield domain.ErrInvalidCredentials after the same amount
// of hashing work.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	email = normalizeEmail(email)

	if err := s.checkLimiter(ctx, email); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if err := s.credentials.VerifyDummy(ctx, password); err != nil {
			return nil, err
		}
		return nil, s.loginFailed(ctx, email, "")
	}

	ok, err := s.credentials.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.loginFailed(ctx, email, user.ID)
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.logger.Warn("login limiter reset failed", zap.Error(err))
		}
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	event := events.NewEvent(events.EventUserLoggedIn)
	event.UserID = user.ID
	event.Email = user.Email
	s.publish(ctx, event)
	return pair, nil
}

// Self returns the account the access token was issued to, without its
// password hash.
func (s *AuthService) Self(ctx context.Context, claims *auth.AccessClaims) (*domain.User, error) {
	if claims == nil || claims.Subject == "" {
		return nil, domain.ErrInvalidToken
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	sanitized := user.Sanitized()
	return &sanitized, nil
}

// Logout revokes the refresh token. An already revoked token returns
// domain.ErrRevokedToken.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	if err := s.tokens.RevokeRefreshToken(ctx, claims.ID); err != nil {
		return err
	}

	event := events.NewEvent(events.EventTokenRevoked)
	event.UserID = claims.Subject
	event.TokenID = claims.ID
	event.Reason = "logout"
	s.publish(ctx, event)
	return nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued for the current state of the account. Of several concurrent
// rotations of one token only the first to claim the record succeeds.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.RevokeRefreshToken(ctx, claims.ID); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: account no longer exists", domain.ErrInvalidToken)
		}
		return nil, err
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	event := events.NewEvent(events.EventTokenRefreshed)
	event.UserID = user.ID
	event.TokenID = claims.ID
	s.publish(ctx, event)
	return pair, nil
}

// issueTokens persists the refresh handle first so a token is never handed
// out without a record that can revoke it.
func (s *AuthService) issueTokens(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	identity := auth.Identity{Subject: user.ID, Role: user.Role}

	record, err := s.tokens.PersistRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	access, accessExp, err := s.tokens.GenerateAccessToken(identity)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.tokens.GenerateRefreshToken(identity, record)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		UserID:           user.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) checkLimiter(ctx context.Context, email string) error {
	if s.limiter == nil {
		return nil
	}
	err := s.limiter.Check(ctx, email)
	if err == nil || errors.Is(err, domain.ErrTooManyAttempts) {
		return err
	}
	// The limiter fails open; an unavailable Redis must not lock everyone out.
	s.logger.Warn("login limiter unavailable", zap.Error(err))
	return nil
}

func (s *AuthService) loginFailed(ctx context.Context, email, userID string) error {
	if s.limiter != nil {
		if err := s.limiter.RecordFailure(ctx, email); err != nil {
			s.logger.Warn("login limiter record failed", zap.Error(err))
		}
	}

	event := events.NewEvent(events.EventLoginFailed)
	event.UserID = userID
	event.Email = email
	s.publish(ctx, event)
	return domain.ErrInvalidCredentials
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("audit event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
