package share

import "errors"

var (
	ErrTokenNotFound   = errors.New("share token not found")
	ErrAlreadyRevoked  = errors.New("share token already revoked")
	ErrNoScopes        = errors.New("at least one scope is required")
	ErrInvalidScope    = errors.New("invalid scope")
	ErrInvalidTTL      = errors.New("ttl must be between 1 and 1440 minutes")
	ErrSubjectNotFound = errors.New("borrower data not found")
)
