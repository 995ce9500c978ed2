package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("email or password does not match")
	// ErrInvalidToken is returned for malformed, tampered or expired tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRevokedToken means the token signature is fine but its record is gone.
	ErrRevokedToken = errors.New("token has been revoked")
	// ErrKeyMaterialUnavailable is fatal at startup.
	ErrKeyMaterialUnavailable = errors.New("signing key material unavailable")
	// ErrStoreFailure marks transient persistence errors.
	ErrStoreFailure = errors.New("store failure")
	ErrNotFound     = errors.New("not found")
	ErrEmailTaken   = errors.New("email already registered")
	// ErrTooManyAttempts is returned when login attempts exceed the window budget.
	ErrTooManyAttempts = errors.New("too many login attempts")
)

// StoreError wraps a persistence error so it matches ErrStoreFailure.
type StoreError struct {
	Op  string
	Err error
}

// NewStoreError wraps err for operation op.
func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreFailure, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStoreFailure) match any StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}
