package auth

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/domain"
)

const (
	accessClaimsKey  = "auth_access_claims"
	refreshClaimsKey = "auth_refresh_claims"
)

// AuthMiddleware gates routes on stateless token verification. It never
// touches the refresh token store; handlers needing revocation checks call
// TokenManager.ValidateRefreshToken themselves.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// AccessTokenGate accepts the access token from its cookie or a bearer header.
func (m *AuthMiddleware) AccessTokenGate(c *fiber.Ctx) error {
	token := c.Cookies(AccessTokenCookie)
	if token == "" {
		if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return fmt.Errorf("%w: invalid authorization header", domain.ErrInvalidToken)
			}
			token = strings.TrimSpace(parts[1])
		}
	}
	if token == "" {
		return fmt.Errorf("%w: missing access token", domain.ErrInvalidToken)
	}

	claims, err := m.tokens.ParseAccessToken(token)
	if err != nil {
		return err
	}

	c.Locals(accessClaimsKey, claims)
	return c.Next()
}

// RefreshTokenGate rejects requests whose refresh token cookie is missing,
// malformed, tampered with or expired.
func (m *AuthMiddleware) RefreshTokenGate(c *fiber.Ctx) error {
	token := c.Cookies(RefreshTokenCookie)
	if token == "" {
		return fmt.Errorf("%w: missing refresh token", domain.ErrInvalidToken)
	}

	claims, err := m.tokens.ParseRefreshToken(token)
	if err != nil {
		return err
	}

	c.Locals(refreshClaimsKey, claims)
	return c.Next()
}

// AccessClaimsFromContext retrieves the verified access claims.
func AccessClaimsFromContext(c *fiber.Ctx) (*AccessClaims, bool) {
	claims, ok := c.Locals(accessClaimsKey).(*AccessClaims)
	return claims, ok && claims != nil
}

// RefreshClaimsFromContext retrieves the verified refresh claims.
func RefreshClaimsFromContext(c *fiber.Ctx) (*RefreshClaims, bool) {
	claims, ok := c.Locals(refreshClaimsKey).(*RefreshClaims)
	return claims, ok && claims != nil
}
