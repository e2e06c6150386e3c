package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const queryTimeout = 3 * time.Second

const walletColumns = `user_id, balance, total_deposited, total_withdrawn, total_loan_payments, created_at, updated_at`

const transactionColumns = `id, user_id, type, amount, balance_before, balance_after, description,
	related_loan_id, related_repayment_id, reference_id, created_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Create opens an empty wallet inside the signup transaction
func (r *Repository) Create(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	return r.ensureWallet(ctx, tx, userID)
}

func (r *Repository) ensureWallet(ctx context.Context, q sqlx.ExecerContext, userID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO wallets (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func (r *Repository) Get(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	if err := r.ensureWallet(ctx, r.db, userID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var w Wallet
	err := r.db.GetContext(ctx, &w, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1`, userID); err != nil {
		return nil, 0, err
	}

	var txs []*Transaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (r *Repository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// lockWallet is always the first lock a wallet operation takes
func (r *Repository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*Wallet, error) {
	if err := r.ensureWallet(ctx, tx, userID); err != nil {
		return nil, err
	}

	var w Wallet
	err := tx.GetContext(ctx, &w, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) findByRef(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, txType TransactionType, referenceID string) (*Transaction, error) {
	if referenceID == "" {
		return nil, nil
	}

	var t Transaction
	err := tx.GetContext(ctx, &t, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE user_id = $1 AND type = $2 AND reference_id = $3
		LIMIT 1
	`, userID, string(txType), referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// post applies p to the locked wallet w and appends the ledger line
func (r *Repository) post(ctx context.Context, tx *sqlx.Tx, w *Wallet, p posting) (*Transaction, error) {
	next := w.Balance.Add(p.Amount)
	if next.IsNegative() {
		return nil, ErrInsufficientFunds
	}

	t := &Transaction{
		ID:                 uuid.New(),
		UserID:             w.UserID,
		Type:               p.Type,
		Amount:             p.Amount,
		BalanceBefore:      w.Balance,
		BalanceAfter:       next,
		Description:        p.Description,
		RelatedLoanID:      p.LoanID,
		RelatedRepaymentID: p.RepaymentID,
		CreatedAt:          time.Now().UTC(),
	}
	if p.ReferenceID != "" {
		ref := p.ReferenceID
		t.ReferenceID = &ref
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.UserID, string(t.Type), t.Amount, t.BalanceBefore, t.BalanceAfter, t.Description,
		t.RelatedLoanID, t.RelatedRepaymentID, t.ReferenceID, t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("insert wallet transaction: %w", err)
	}

	abs := p.Amount.Abs()
	var deposited, withdrawn, repaid decimal.Decimal
	switch p.Type {
	case TransactionDeposit:
		deposited = abs
	case TransactionWithdrawal:
		withdrawn = abs
	case TransactionLoanPayment:
		repaid = abs
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $2,
		    total_deposited = total_deposited + $3,
		    total_withdrawn = total_withdrawn + $4,
		    total_loan_payments = total_loan_payments + $5,
		    updated_at = now()
		WHERE user_id = $1
	`, w.UserID, next, deposited, withdrawn, repaid)
	if err != nil {
		return nil, fmt.Errorf("update wallet balance: %w", err)
	}

	w.Balance = next
	w.TotalDeposited = w.TotalDeposited.Add(deposited)
	w.TotalWithdrawn = w.TotalWithdrawn.Add(withdrawn)
	w.TotalLoanPayments = w.TotalLoanPayments.Add(repaid)
	return t, nil
}

// apply posts a deposit or withdrawal. A reference already used for the same
// amount replays the original transaction.
func (r *Repository) apply(ctx context.Context, userID uuid.UUID, p posting) (*Transaction, *Wallet, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	w, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}

	existing, err := r.findByRef(ctx, tx, userID, p.Type, p.ReferenceID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		if !existing.Amount.Equal(p.Amount) {
			return nil, nil, ErrReferenceConflict
		}
		return existing, w, nil
	}

	t, err := r.post(ctx, tx, w, p)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return t, w, nil
}

func (r *Repository) insertLoanPayment(ctx context.Context, tx *sqlx.Tx, p *LoanPayment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loan_payments (id, loan_id, repayment_id, user_id, wallet_transaction_id, amount,
		                           is_early_payment, level_progress_awarded, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.LoanID, p.RepaymentID, p.UserID, p.WalletTransactionID, p.Amount,
		p.IsEarlyPayment, p.LevelProgressAwarded, p.PaidAt)
	if err != nil {
		return fmt.Errorf("insert loan payment: %w", err)
	}
	return nil
}
