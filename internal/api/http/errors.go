package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/domain"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// mapError translates service and framework errors into transport errors.
// Messages for credential and token failures are fixed strings so responses
// never reveal which check failed.
func mapError(err error) *apperrors.DomainError {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return apperrors.NewDomainError(statusCode(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
	}

	var mapped error
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		mapped = apperrors.NewBadRequest("INVALID_CREDENTIALS", "email or password does not match")
	case errors.Is(err, domain.ErrInvalidToken):
		mapped = apperrors.NewUnauthorized("INVALID_TOKEN", "invalid or expired token")
	case errors.Is(err, domain.ErrRevokedToken):
		mapped = apperrors.NewUnauthorized("TOKEN_REVOKED", "token has been revoked")
	case errors.Is(err, domain.ErrEmailTaken):
		mapped = apperrors.NewConflict("email already registered", nil)
	case errors.Is(err, domain.ErrTooManyAttempts):
		mapped = apperrors.NewTooManyRequests("too many login attempts, try again later")
	case errors.Is(err, domain.ErrNotFound):
		mapped = apperrors.NewNotFound("user", nil)
	case errors.Is(err, domain.ErrStoreFailure), errors.Is(err, context.DeadlineExceeded):
		mapped = apperrors.NewServiceUnavailable(err)
	default:
		return apperrors.ToDomainError(err)
	}
	return mapped.(*apperrors.DomainError)
}

func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "HTTP_ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}
