package dto

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Normalize trims surrounding whitespace from every field.
func (r *RegisterRequest) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.Password = strings.TrimSpace(r.Password)
}

// Validate returns per-field problems, or nil when the request is acceptable.
func (r RegisterRequest) Validate() map[string]any {
	details := map[string]any{}
	if r.FirstName == "" {
		details["firstName"] = "first name is required"
	}
	if r.LastName == "" {
		details["lastName"] = "last name is required"
	}
	if msg := validateEmail(r.Email); msg != "" {
		details["email"] = msg
	}
	switch {
	case utf8.RuneCountInString(r.Password) < minPasswordLength:
		details["password"] = "password must be at least 8 characters"
	case len(r.Password) > maxPasswordBytes:
		details["password"] = "password must be at most 72 bytes"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims surrounding whitespace the same way registration does.
func (r *LoginRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.Password = strings.TrimSpace(r.Password)
}

// Validate returns per-field problems, or nil when the request is acceptable.
func (r LoginRequest) Validate() map[string]any {
	details := map[string]any{}
	if r.Email == "" {
		details["email"] = "email is required"
	}
	if r.Password == "" {
		details["password"] = "password is required"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// AuthResponse is returned by register and login; the tokens travel in cookies.
type AuthResponse struct {
	ID string `json:"id"`
}

func validateEmail(email string) string {
	if email == "" {
		return "email is required"
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "email must be a valid address"
	}
	return ""
}
