package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/auth"
)

// JWKSHandler publishes the access-token verification key.
type JWKSHandler struct {
	set auth.JWKSet
}

// NewJWKSHandler snapshots the public key set once; it never changes while
// the process runs.
func NewJWKSHandler(keys *auth.KeyMaterial) *JWKSHandler {
	return &JWKSHandler{set: keys.JWKS()}
}

// Keys handles GET /.well-known/jwks.json.
func (h *JWKSHandler) Keys(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.JSON(h.set)
}
