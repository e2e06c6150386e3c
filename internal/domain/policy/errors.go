package policy

import (
	"errors"
	"fmt"
)

var (
	ErrNoActivePolicy  = errors.New("no active policy")
	ErrVersionExists   = errors.New("policy version already exists")
	ErrVersionNotFound = errors.New("policy version not found")
	ErrInvalidParams   = errors.New("invalid policy params")
)

// ParamsError names the first rule a candidate policy breaks.
type ParamsError struct {
	Field  string
	Reason string
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("invalid policy params: %s %s", e.Field, e.Reason)
}

func (e *ParamsError) Unwrap() error {
	return ErrInvalidParams
}
