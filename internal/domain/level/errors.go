package level

import "errors"

var (
	ErrRecordNotFound = errors.New("level record not found")
	ErrCardNotFound   = errors.New("digital id not found")
	ErrInvalidOutcome = errors.New("invalid payment outcome")
)
