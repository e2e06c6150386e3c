package auth

import (
	"errors"

	"github.com/liwaywai/lending-api/internal/domain/user"
)

var (
	ErrEmailAlreadyExists = user.ErrEmailAlreadyExists
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = user.ErrUserNotFound
	ErrAccountDisabled    = errors.New("account is disabled")
)
