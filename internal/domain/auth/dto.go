package auth

import (
	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/profile"
	"github.com/liwaywai/lending-api/internal/domain/user"
)

// SignupRequest for POST /auth/signup
type SignupRequest struct {
	Email      string `json:"email" validate:"required,email,max=255"`
	Password   string `json:"password" validate:"required,min=6,max=128"`
	Name       string `json:"name" validate:"required,min=2,max=100"`
	City       string `json:"city" validate:"required,min=2,max=100"`
	Occupation string `json:"occupation" validate:"required,min=2,max=100"`
	Gender     string `json:"gender" validate:"gender"`
}

// LoginRequest for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by signup and login
type AuthResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int        `json:"expires_in"`
	User        *user.User `json:"user"`
}

// MeResponse for GET /auth/me. Profile and Card are absent for admins.
type MeResponse struct {
	User    *user.User       `json:"user"`
	Profile *profile.Profile `json:"profile,omitempty"`
	Card    *level.CardView  `json:"digital_id,omitempty"`
}
