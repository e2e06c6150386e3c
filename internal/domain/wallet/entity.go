package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDeposit          TransactionType = "deposit"
	TransactionWithdrawal       TransactionType = "withdrawal"
	TransactionLoanPayment      TransactionType = "loan_payment"
	TransactionLoanDisbursement TransactionType = "loan_disbursement"
)

type Wallet struct {
	UserID            uuid.UUID       `db:"user_id" json:"user_id"`
	Balance           decimal.Decimal `db:"balance" json:"balance"`
	TotalDeposited    decimal.Decimal `db:"total_deposited" json:"total_deposited"`
	TotalWithdrawn    decimal.Decimal `db:"total_withdrawn" json:"total_withdrawn"`
	TotalLoanPayments decimal.Decimal `db:"total_loan_payments" json:"total_loan_payments"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Transaction is one ledger line. Amount is signed; BalanceAfter is
// BalanceBefore + Amount.
type Transaction struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	UserID             uuid.UUID       `db:"user_id" json:"user_id"`
	Type               TransactionType `db:"type" json:"type"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore      decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter       decimal.Decimal `db:"balance_after" json:"balance_after"`
	Description        string          `db:"description" json:"description"`
	RelatedLoanID      *uuid.UUID      `db:"related_loan_id" json:"related_loan_id,omitempty"`
	RelatedRepaymentID *uuid.UUID      `db:"related_repayment_id" json:"related_repayment_id,omitempty"`
	ReferenceID        *string         `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

type LoanPayment struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	LoanID               uuid.UUID       `db:"loan_id" json:"loan_id"`
	RepaymentID          uuid.UUID       `db:"repayment_id" json:"repayment_id"`
	UserID               uuid.UUID       `db:"user_id" json:"user_id"`
	WalletTransactionID  uuid.UUID       `db:"wallet_transaction_id" json:"wallet_transaction_id"`
	Amount               decimal.Decimal `db:"amount" json:"amount"`
	IsEarlyPayment       bool            `db:"is_early_payment" json:"is_early_payment"`
	LevelProgressAwarded bool            `db:"level_progress_awarded" json:"level_progress_awarded"`
	PaidAt               time.Time       `db:"paid_at" json:"paid_at"`
}

// posting is a balance change about to be written
type posting struct {
	Type        TransactionType
	Amount      decimal.Decimal
	Description string
	LoanID      *uuid.UUID
	RepaymentID *uuid.UUID
	ReferenceID string
}
