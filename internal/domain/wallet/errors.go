package wallet

import "errors"

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrDepositLimit       = errors.New("maximum deposit amount is ₱50,000")
	ErrInsufficientFunds  = errors.New("insufficient wallet balance")
	ErrAmountMismatch     = errors.New("payment must equal the scheduled instalment")
	ErrDuplicateReference = errors.New("duplicate reference")
	ErrReferenceConflict  = errors.New("reference conflicts with different amount")
)
