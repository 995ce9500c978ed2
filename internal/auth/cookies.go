package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Cookie names shared with clients.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookiePolicy describes how tokens are handed to browsers: HTTP-only,
// strict same-site, scoped to Domain, Max-Age matching the token lifetime.
type CookiePolicy struct {
	Domain string
	Secure bool
}

// Access returns the cookie carrying an access token valid until expiresAt.
func (p CookiePolicy) Access(token string, expiresAt time.Time) *fiber.Cookie {
	return p.cookie(AccessTokenCookie, token, expiresAt)
}

// Refresh returns the cookie carrying a refresh token valid until expiresAt.
func (p CookiePolicy) Refresh(token string, expiresAt time.Time) *fiber.Cookie {
	return p.cookie(RefreshTokenCookie, token, expiresAt)
}

// Expired returns a cookie that makes the browser drop name.
func (p CookiePolicy) Expired(name string) *fiber.Cookie {
	c := p.cookie(name, "", time.Unix(0, 0))
	c.MaxAge = -1
	return c
}

func (p CookiePolicy) cookie(name, value string, expiresAt time.Time) *fiber.Cookie {
	maxAge := int(time.Until(expiresAt) / time.Second)
	if maxAge < 0 {
		maxAge = 0
	}
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   maxAge,
		Expires:  expiresAt,
		Secure:   p.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	}
}
