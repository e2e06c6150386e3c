package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/loan"
	"github.com/liwaywai/lending-api/internal/pkg/money"
)

// EventLevelChanged is pushed when a completed loan moves the borrower up
const EventLevelChanged = "level.changed"

// LoanEngine is the part of the loan service a wallet operation drives
type LoanEngine interface {
	Disburse(ctx context.Context, store loan.TxStore, userID, loanID uuid.UUID) (*loan.Loan, []*loan.Repayment, error)
	PrepareRepayment(ctx context.Context, store loan.TxStore, userID, repaymentID uuid.UUID) (*loan.Repayment, *loan.Loan, error)
	SettleRepayment(ctx context.Context, store loan.TxStore, levels level.TxStore, l *loan.Loan, rp *loan.Repayment) (*loan.Settlement, error)
	PendingRepayments(ctx context.Context, userID uuid.UUID) ([]*loan.Repayment, error)
}

// LoanStores binds loan persistence to a wallet transaction
type LoanStores interface {
	Tx(tx *sqlx.Tx) loan.TxStore
}

// LevelStores binds level persistence to a wallet transaction
type LevelStores interface {
	Tx(tx *sqlx.Tx) level.TxStore
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data interface{})
}

type Service struct {
	repo     *Repository
	loans    LoanEngine
	loanTx   LoanStores
	levelTx  LevelStores
	notifier Notifier
}

func NewService(repo *Repository, loans LoanEngine, loanTx LoanStores, levelTx LevelStores, notifier Notifier) *Service {
	return &Service{repo: repo, loans: loans, loanTx: loanTx, levelTx: levelTx, notifier: notifier}
}

func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	return s.repo.Get(ctx, userID)
}

func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, req *MovementRequest) (*Receipt, error) {
	amount := money.Round(req.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.GreaterThan(MaxDeposit) {
		return nil, ErrDepositLimit
	}
	desc := req.Description
	if desc == "" {
		desc = "Wallet top-up - " + money.Format(amount)
	}

	t, w, err := s.repo.apply(ctx, userID, posting{
		Type:        TransactionDeposit,
		Amount:      amount,
		Description: desc,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", userID.String()).Str("amount", amount.StringFixed(2)).Str("reference_id", req.ReferenceID).Msg("wallet deposit applied")
	return &Receipt{Transaction: t, NewBalance: w.Balance}, nil
}

func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, req *MovementRequest) (*Receipt, error) {
	amount := money.Round(req.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	desc := req.Description
	if desc == "" {
		desc = "Wallet withdrawal - " + money.Format(amount)
	}

	t, w, err := s.repo.apply(ctx, userID, posting{
		Type:        TransactionWithdrawal,
		Amount:      amount.Neg(),
		Description: desc,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", userID.String()).Str("amount", amount.StringFixed(2)).Str("reference_id", req.ReferenceID).Msg("wallet withdrawal applied")
	return &Receipt{Transaction: t, NewBalance: w.Balance}, nil
}

// DisburseLoan credits an approved loan to the wallet, activates it and
// writes its repayment schedule in one transaction.
func (s *Service) DisburseLoan(ctx context.Context, userID, loanID uuid.UUID) (*DisbursementResult, error) {
	tx, err := s.repo.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := s.repo.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	l, schedule, err := s.loans.Disburse(ctx, s.loanTx.Tx(tx), userID, loanID)
	if err != nil {
		return nil, err
	}

	t, err := s.repo.post(ctx, tx, w, posting{
		Type:        TransactionLoanDisbursement,
		Amount:      l.Amount,
		Description: "Loan disbursement - " + money.Format(l.Amount),
		LoanID:      &l.ID,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return nil, loan.ErrNotApproved
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &DisbursementResult{Loan: l, Schedule: schedule, Transaction: t, NewBalance: w.Balance}, nil
}

// PayLoanRepayment pays one instalment from the wallet. The debit, the
// instalment, the loan and the level record commit together or not at all.
func (s *Service) PayLoanRepayment(ctx context.Context, userID uuid.UUID, req *PayLoanRequest) (*PaymentResult, error) {
	tx, err := s.repo.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := s.repo.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	loans := s.loanTx.Tx(tx)
	rp, l, err := s.loans.PrepareRepayment(ctx, loans, userID, req.RepaymentID)
	if err != nil {
		return nil, err
	}

	amount := loan.ScheduledAmount(rp, req.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !amount.Equal(rp.Amount) {
		return nil, fmt.Errorf("%w of %s", ErrAmountMismatch, money.Format(rp.Amount))
	}
	if w.Balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	t, err := s.repo.post(ctx, tx, w, posting{
		Type:        TransactionLoanPayment,
		Amount:      amount.Neg(),
		Description: "Loan payment for " + money.Format(l.Amount) + " loan",
		LoanID:      &l.ID,
		RepaymentID: &rp.ID,
	})
	if err != nil {
		return nil, err
	}

	settled, err := s.loans.SettleRepayment(ctx, loans, s.levelTx.Tx(tx), l, rp)
	if err != nil {
		return nil, err
	}

	payment := &LoanPayment{
		ID:                   uuid.New(),
		LoanID:               l.ID,
		RepaymentID:          rp.ID,
		UserID:               userID,
		WalletTransactionID:  t.ID,
		Amount:               amount,
		IsEarlyPayment:       settled.IsEarly,
		LevelProgressAwarded: settled.LoanCompleted,
		PaidAt:               *rp.PaidAt,
	}
	if err := s.repo.insertLoanPayment(ctx, tx, payment); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("loan_id", l.ID.String()).
		Str("repayment_id", rp.ID.String()).
		Str("amount", amount.StringFixed(2)).
		Bool("loan_completed", settled.LoanCompleted).
		Msg("loan repayment paid from wallet")

	if p := settled.LevelProgress; p != nil && p.LevelChanged && s.notifier != nil {
		s.notifier.Notify(ctx, userID, EventLevelChanged, p)
	}

	return &PaymentResult{
		Transaction:   t,
		LoanPayment:   payment,
		Repayment:     settled.Repayment,
		NewBalance:    w.Balance,
		LoanCompleted: settled.LoanCompleted,
		LevelUpdate:   settled.LevelProgress,
	}, nil
}

func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, int, error) {
	if limit <= 0 {
		limit = defaultTxLimit
	}
	if limit > maxTxLimit {
		limit = maxTxLimit
	}
	if offset < 0 {
		offset = 0
	}
	txs, total, err := s.repo.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	return txs, total, nil
}

func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	w, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.repo.ListTransactions(ctx, userID, recentTxLimit, 0)
	if err != nil {
		return nil, err
	}
	pending, err := s.loans.PendingRepayments(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, rp := range pending {
		total = total.Add(rp.Amount)
	}
	if recent == nil {
		recent = []*Transaction{}
	}
	if pending == nil {
		pending = []*loan.Repayment{}
	}
	return &Summary{
		Wallet:             w,
		RecentTransactions: recent,
		PendingRepayments:  pending,
		PendingTotal:       total,
		CanPayAll:          w.Balance.GreaterThanOrEqual(total),
	}, nil
}
