package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/api/dto"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/service"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// AuthHandler exposes the account and token endpoints. Tokens travel only
// in cookies; response bodies carry the account id.
type AuthHandler struct {
	auth    *service.AuthService
	cookies auth.CookiePolicy
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, cookies auth.CookiePolicy) *AuthHandler {
	return &AuthHandler{auth: authService, cookies: cookies}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Normalize()
	if details := req.Validate(); details != nil {
		return apperrors.NewValidationError("invalid registration", details)
	}

	pair, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return err
	}

	h.setTokenCookies(c, pair)
	return c.Status(http.StatusCreated).JSON(dto.AuthResponse{ID: pair.UserID})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Normalize()
	if details := req.Validate(); details != nil {
		return apperrors.NewValidationError("email and password required", details)
	}

	pair, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setTokenCookies(c, pair)
	return c.JSON(dto.AuthResponse{ID: pair.UserID})
}

// Self handles GET /auth/self.
func (h *AuthHandler) Self(c *fiber.Ctx) error {
	claims, ok := auth.AccessClaimsFromContext(c)
	if !ok {
		return domain.ErrInvalidToken
	}
	user, err := h.auth.Self(c.UserContext(), claims)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// Refresh handles POST /auth/refresh by rotating the refresh token.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	pair, err := h.auth.Refresh(c.UserContext(), c.Cookies(auth.RefreshTokenCookie))
	if err != nil {
		return err
	}

	h.setTokenCookies(c, pair)
	return c.JSON(dto.AuthResponse{ID: pair.UserID})
}

// Logout handles POST /auth/logout. The refresh token must belong to the
// same account as the access token. A token that was already revoked still
// gets its cookies cleared.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	access, ok := auth.AccessClaimsFromContext(c)
	if !ok {
		return fmt.Errorf("%w: missing access claims", domain.ErrInvalidToken)
	}
	refresh, ok := auth.RefreshClaimsFromContext(c)
	if !ok {
		return fmt.Errorf("%w: missing refresh claims", domain.ErrInvalidToken)
	}
	if refresh.Subject != access.Subject {
		return fmt.Errorf("%w: refresh token belongs to another account", domain.ErrInvalidToken)
	}

	err := h.auth.Logout(c.UserContext(), c.Cookies(auth.RefreshTokenCookie))
	if err != nil && !errors.Is(err, domain.ErrRevokedToken) {
		return err
	}

	c.Cookie(h.cookies.Expired(auth.AccessTokenCookie))
	c.Cookie(h.cookies.Expired(auth.RefreshTokenCookie))
	return c.SendStatus(http.StatusNoContent)
}

func (h *AuthHandler) setTokenCookies(c *fiber.Ctx, pair *domain.TokenPair) {
	c.Cookie(h.cookies.Access(pair.AccessToken, pair.AccessExpiresAt))
	c.Cookie(h.cookies.Refresh(pair.RefreshToken, pair.RefreshExpiresAt))
}
