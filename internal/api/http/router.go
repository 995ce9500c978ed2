package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	JWKS           *handlers.JWKSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	app.Get("/.well-known/jwks.json", cfg.JWKS.Keys)

	mw := cfg.AuthMiddleware
	authGroup := app.Group("/auth", noStore)
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/self", mw.AccessTokenGate, auth.RequireRole(domain.RoleCustomer, domain.RoleManager, domain.RoleAdmin), cfg.Auth.Self)
	authGroup.Post("/refresh", mw.RefreshTokenGate, cfg.Auth.Refresh)
	authGroup.Post("/logout", mw.AccessTokenGate, mw.RefreshTokenGate, cfg.Auth.Logout)
}
