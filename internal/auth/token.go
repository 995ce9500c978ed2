package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/auth-service/internal/domain"
)

var (
	accessSigningMethod  = jwt.SigningMethodRS256
	refreshSigningMethod = jwt.SigningMethodHS256
)

// RefreshTokenStore persists the revocation handles of issued refresh tokens.
type RefreshTokenStore interface {
	Create(ctx context.Context, userID string, expiresAt time.Time) (*domain.RefreshToken, error)
	// Get returns domain.ErrNotFound when the record does not exist.
	Get(ctx context.Context, id string) (*domain.RefreshToken, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error
	// Revoke deletes the record and reports whether this call removed it.
	Revoke(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Identity is what a token asserts about its bearer.
type Identity struct {
	Subject string
	Role    domain.Role
}

// AccessClaims describes the access token payload.
type AccessClaims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the subject and role carried by the claims.
func (c *AccessClaims) Identity() Identity {
	return Identity{Subject: c.Subject, Role: c.Role}
}

// RefreshClaims describes the refresh token payload. ID (jti) is the store record id.
type RefreshClaims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the subject and role carried by the claims.
func (c *RefreshClaims) Identity() Identity {
	return Identity{Subject: c.Subject, Role: c.Role}
}

// TokenConfig tunes token issuance.
type TokenConfig struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// TokenManager issues and validates access and refresh tokens.
//
// Access tokens are RS256 so any service holding the public key can verify
// them. Refresh tokens are HS256 and are only ever presented back to this
// service; they are valid only while their store record exists.
type TokenManager struct {
	keys       *KeyMaterial
	store      RefreshTokenStore
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(keys *KeyMaterial, store RefreshTokenStore, cfg TokenConfig) *TokenManager {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 365 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenManager{
		keys:       keys,
		store:      store,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}
}

// AccessTTL returns the access token validity window.
func (tm *TokenManager) AccessTTL() time.Duration { return tm.accessTTL }

// RefreshTTL returns the refresh token validity window.
func (tm *TokenManager) RefreshTTL() time.Duration { return tm.refreshTTL }

// GenerateAccessToken signs a short-lived access token for id.
func (tm *TokenManager) GenerateAccessToken(id Identity) (string, time.Time, error) {
	key, err := tm.keys.signingKey()
	if err != nil {
		return "", time.Time{}, err
	}

	now := tm.now()
	expiresAt := now.Add(tm.accessTTL)
	claims := &AccessClaims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(accessSigningMethod, claims)
	token.Header["kid"] = tm.keys.KeyID()
	tokenString, err := token.SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ParseAccessToken verifies an access token against the public key.
func (tm *TokenManager) ParseAccessToken(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := tm.parser(accessSigningMethod).ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if kid, ok := token.Header["kid"].(string); ok && kid != tm.keys.KeyID() {
			return nil, errors.New("unknown kid")
		}
		return tm.keys.PublicKey(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}
	return claims, nil
}

// PersistRefreshToken stores a new revocation handle for user. The returned
// record id must be embedded in the refresh token via GenerateRefreshToken.
func (tm *TokenManager) PersistRefreshToken(ctx context.Context, user *domain.User) (*domain.RefreshToken, error) {
	record, err := tm.store.Create(ctx, user.ID, tm.now().Add(tm.refreshTTL))
	if err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}
	return record, nil
}

// GenerateRefreshToken signs a refresh token bound to record.
func (tm *TokenManager) GenerateRefreshToken(id Identity, record *domain.RefreshToken) (string, time.Time, error) {
	secret, err := tm.keys.secret()
	if err != nil {
		return "", time.Time{}, err
	}
	if record == nil || record.ID == "" {
		return "", time.Time{}, errors.New("refresh token record id required")
	}

	claims := &RefreshClaims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        record.ID,
			Subject:   id.Subject,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(tm.now()),
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
		},
	}

	tokenString, err := jwt.NewWithClaims(refreshSigningMethod, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return tokenString, record.ExpiresAt, nil
}

// ParseRefreshToken checks signature and time claims only. It does not
// consult the store; use ValidateRefreshToken where revocation matters.
func (tm *TokenManager) ParseRefreshToken(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	_, err := tm.parser(refreshSigningMethod).ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return tm.keys.secret()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", domain.ErrInvalidToken)
	}
	return claims, nil
}

// ValidateRefreshToken is the strict path: the token must verify and its
// jti must still be present in the store. A missing record yields
// domain.ErrRevokedToken.
func (tm *TokenManager) ValidateRefreshToken(ctx context.Context, tokenStr string) (*RefreshClaims, error) {
	claims, err := tm.ParseRefreshToken(tokenStr)
	if err != nil {
		return nil, err
	}

	record, err := tm.store.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRevokedToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if record.UserID != claims.Subject {
		return nil, fmt.Errorf("%w: subject mismatch", domain.ErrInvalidToken)
	}
	if record.Expired(tm.now()) {
		return nil, fmt.Errorf("%w: refresh token expired", domain.ErrInvalidToken)
	}
	return claims, nil
}

// DeleteRefreshToken revokes the refresh token with the given jti. Revoking
// an unknown or already revoked id is not an error.
func (tm *TokenManager) DeleteRefreshToken(ctx context.Context, id string) error {
	if err := tm.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// RevokeRefreshToken claims the record behind a validated refresh token.
// Exactly one caller wins; the others get domain.ErrRevokedToken.
func (tm *TokenManager) RevokeRefreshToken(ctx context.Context, id string) error {
	removed, err := tm.store.Revoke(ctx, id)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !removed {
		return domain.ErrRevokedToken
	}
	return nil
}

func (tm *TokenManager) parser(method jwt.SigningMethod) *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(tm.now),
	)
}
