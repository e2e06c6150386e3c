package admin

import "errors"

var ErrBorrowerNotFound = errors.New("borrower not found")
