package loan

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/pkg/money"
)

var (
	ErrLoanNotFound       = errors.New("loan not found")
	ErrRepaymentNotFound  = errors.New("repayment not found")
	ErrActiveLoanExists   = errors.New("an active loan already exists")
	ErrAmountExceedsCap   = errors.New("amount exceeds current limit")
	ErrTermTooLong        = errors.New("term exceeds policy maximum")
	ErrOverrideNotAllowed = errors.New("loan can no longer be overridden")
	ErrNotApproved        = errors.New("loan is not approved")
	ErrNotActive          = errors.New("loan is not active")
	ErrAlreadyPaid        = errors.New("repayment already paid")
)

// ActiveLoanError names the loan that blocks a new application
type ActiveLoanError struct {
	LoanID uuid.UUID
}

func (e *ActiveLoanError) Error() string {
	return fmt.Sprintf("%s: %s", ErrActiveLoanExists, e.LoanID)
}

func (e *ActiveLoanError) Unwrap() error {
	return ErrActiveLoanExists
}

// CapExceededError carries the borrower's current cap
type CapExceededError struct {
	Cap       decimal.Decimal
	Requested decimal.Decimal
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("amount exceeds your current limit of %s", money.Format(e.Cap))
}

func (e *CapExceededError) Unwrap() error {
	return ErrAmountExceedsCap
}
