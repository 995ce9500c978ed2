package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/auth-service/internal/domain"
)

// RefreshTokenRepository stores refresh token revocation handles.
// Get returns domain.ErrNotFound for unknown ids and Delete is idempotent.
// Revoke deletes the record and reports whether this call removed it, so
// only one of several concurrent callers sees true.
type RefreshTokenRepository interface {
	Create(ctx context.Context, userID string, expiresAt time.Time) (*domain.RefreshToken, error)
	Get(ctx context.Context, id string) (*domain.RefreshToken, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type refreshTokenRepository struct {
	db DBTX
}

// NewRefreshTokenRepository returns a Postgres-backed implementation.
// Ids are uuids assigned by the database.
func NewRefreshTokenRepository(db DBTX) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, userID string, expiresAt time.Time) (*domain.RefreshToken, error) {
	const query = `
        INSERT INTO refresh_tokens (user_id, expires_at)
        VALUES ($1, $2)
        RETURNING id, created_at`

	token := &domain.RefreshToken{UserID: userID, ExpiresAt: expiresAt}
	if err := r.db.QueryRow(ctx, query, userID, expiresAt).Scan(&token.ID, &token.CreatedAt); err != nil {
		return nil, domain.NewStoreError("create refresh token", err)
	}
	return token, nil
}

func (r *refreshTokenRepository) Get(ctx context.Context, id string) (*domain.RefreshToken, error) {
	const query = `
        SELECT id, user_id, expires_at, created_at
        FROM refresh_tokens WHERE id=$1`

	var token domain.RefreshToken
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.ExpiresAt,
		&token.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidTextRepresentation(err) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStoreError("get refresh token", err)
	}
	return &token, nil
}

func (r *refreshTokenRepository) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id=$1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		if isInvalidTextRepresentation(err) {
			return false, nil
		}
		return false, domain.NewStoreError("refresh token exists", err)
	}
	return exists, nil
}

func (r *refreshTokenRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM refresh_tokens WHERE id=$1`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		if isInvalidTextRepresentation(err) {
			return nil
		}
		return domain.NewStoreError("delete refresh token", err)
	}
	return nil
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM refresh_tokens WHERE id=$1`

	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		if isInvalidTextRepresentation(err) {
			return false, nil
		}
		return false, domain.NewStoreError("revoke refresh token", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at <= $1`

	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, domain.NewStoreError("delete expired refresh tokens", err)
	}
	return cmd.RowsAffected(), nil
}

// isInvalidTextRepresentation reports a non-uuid id; such an id can never
// name a stored record.
func isInvalidTextRepresentation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}
