package wallet

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/loan"
)

// MaxDeposit caps a single deposit
var MaxDeposit = decimal.NewFromInt(50000)

const (
	defaultTxLimit = 20
	maxTxLimit     = 100
	recentTxLimit  = 10
)

type MovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=200"`
	ReferenceID string          `json:"reference_id" validate:"max=100"`
}

type PayLoanRequest struct {
	RepaymentID uuid.UUID        `json:"repayment_id" validate:"required"`
	Amount      *decimal.Decimal `json:"amount"`
}

type DisburseRequest struct {
	LoanID uuid.UUID `json:"loan_id" validate:"required"`
}

type Receipt struct {
	Transaction *Transaction    `json:"transaction"`
	NewBalance  decimal.Decimal `json:"new_balance"`
}

type PaymentResult struct {
	Transaction   *Transaction    `json:"transaction"`
	LoanPayment   *LoanPayment    `json:"loan_payment"`
	Repayment     *loan.Repayment `json:"repayment"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	LoanCompleted bool            `json:"loan_completed"`
	LevelUpdate   *level.Progress `json:"level_update,omitempty"`
}

type DisbursementResult struct {
	Loan        *loan.Loan        `json:"loan"`
	Schedule    []*loan.Repayment `json:"schedule"`
	Transaction *Transaction      `json:"transaction"`
	NewBalance  decimal.Decimal   `json:"new_balance"`
}

type Summary struct {
	Wallet             *Wallet           `json:"wallet"`
	RecentTransactions []*Transaction    `json:"recent_transactions"`
	PendingRepayments  []*loan.Repayment `json:"pending_repayments"`
	PendingTotal       decimal.Decimal   `json:"pending_total"`
	CanPayAll          bool              `json:"can_pay_all"`
}
