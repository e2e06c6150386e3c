package loan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/liwaywai/lending-api/internal/pkg/scoring"
)

const queryTimeout = 3 * time.Second

// ApplicationFilter narrows the admin application list
type ApplicationFilter struct {
	Status Status
	Page   int
	Limit  int
}

// OverrideInput is an admin correction of a decision
type OverrideInput struct {
	LoanID        uuid.UUID
	AdminID       uuid.UUID
	Decision      Decision
	Note          string
	PolicyVersion string
	At            time.Time
}

// TxStore touches loans and repayments inside a caller-owned transaction.
// Lock order is loan row first, then its repayments.
type TxStore interface {
	LockLoan(ctx context.Context, loanID, userID uuid.UUID) (*Loan, error)
	Activate(ctx context.Context, l *Loan, schedule []*Repayment) error
	FindRepayment(ctx context.Context, repaymentID, userID uuid.UUID) (*Repayment, error)
	LockRepayment(ctx context.Context, repaymentID uuid.UUID) (*Repayment, error)
	MarkRepaymentPaid(ctx context.Context, r *Repayment) error
	ListRepayments(ctx context.Context, loanID uuid.UUID) ([]*Repayment, error)
	Complete(ctx context.Context, l *Loan) error
}

// Repository defines loan data access
type Repository interface {
	CreateApplication(ctx context.Context, l *Loan, oneActive bool) error
	FindOpen(ctx context.Context, userID uuid.UUID) (*Loan, error)
	ScoringProfile(ctx context.Context, userID uuid.UUID) (scoring.Profile, error)
	RecordDecision(ctx context.Context, l *Loan, rec *DecisionRecord, score *RiskScore) error
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*Loan, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Loan, error)
	LatestDecision(ctx context.Context, loanID uuid.UUID) (*DecisionRecord, error)
	GetRiskScore(ctx context.Context, loanID uuid.UUID) (*RiskScore, error)
	ListRepayments(ctx context.Context, loanID uuid.UUID) ([]*Repayment, error)
	PendingRepayments(ctx context.Context, userID uuid.UUID) ([]*Repayment, error)
	LatestAssessment(ctx context.Context, userID uuid.UUID) (*Assessment, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]*Application, int, error)
	Override(ctx context.Context, in OverrideInput) (*Loan, Status, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	Tx(tx *sqlx.Tx) TxStore
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates loan repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const insertLoan = `
	INSERT INTO loans (id, user_id, amount, term_weeks, purpose, status, level_at_apply, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// CreateApplication stores an applied loan. With oneActive set the borrower's level
// row is locked while the open-loan check is repeated, so two concurrent
// applications cannot both pass the guard.
func (r *repository) CreateApplication(ctx context.Context, l *Loan, oneActive bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if oneActive {
		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM levels WHERE user_id = $1 FOR UPDATE`, l.UserID); err != nil {
			return err
		}
		var openID uuid.UUID
		err := tx.GetContext(ctx, &openID, `
			SELECT id FROM loans WHERE user_id = $1 AND status IN ('approved', 'active') LIMIT 1
		`, l.UserID)
		if err == nil {
			return &ActiveLoanError{LoanID: openID}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, insertLoan,
		l.ID, l.UserID, l.Amount, l.TermWeeks, l.Purpose, l.Status, l.LevelAtApply, l.CreatedAt, l.UpdatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *repository) FindOpen(ctx context.Context, userID uuid.UUID) (*Loan, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var l Loan
	err := r.db.GetContext(ctx, &l, `
		SELECT * FROM loans
		WHERE user_id = $1 AND status IN ('approved', 'active')
		ORDER BY created_at DESC LIMIT 1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) ScoringProfile(ctx context.Context, userID uuid.UUID) (scoring.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p scoring.Profile
	err := r.db.QueryRowxContext(ctx, `
		SELECT kyc_level, city, occupation FROM profiles WHERE user_id = $1
	`, userID).Scan(&p.KYCLevel, &p.City, &p.Occupation)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	return p, err
}

// RecordDecision writes the risk score and ledger row and moves the loan out of applied.
func (r *repository) RecordDecision(ctx context.Context, l *Loan, rec *DecisionRecord, score *RiskScore) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO risk_scores (id, loan_id, pd, reasons, counterfactual_hint, model_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, score.ID, score.LoanID, score.PD, score.Reasons, score.CounterfactualHint, score.ModelVersion, score.CreatedAt); err != nil {
		return fmt.Errorf("insert risk score: %w", err)
	}

	if err := insertDecision(ctx, tx, rec); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE loans
		SET status = $2, counter_offer = $3, decided_at = $4, approved_at = $5, updated_at = $6
		WHERE id = $1 AND status = 'applied'
	`, l.ID, l.Status, l.CounterOffer, l.DecidedAt, l.ApprovedAt, l.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLoanNotFound
	}
	return tx.Commit()
}

func insertDecision(ctx context.Context, tx *sqlx.Tx, rec *DecisionRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO decision_ledger (
			id, loan_id, user_id, inputs, model_version, policy_version, decision, reasons,
			is_fallback, override_note, overridden_by, overridden_at, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, rec.ID, rec.LoanID, rec.UserID, []byte(rec.Inputs), rec.ModelVersion, rec.PolicyVersion, rec.Decision,
		rec.Reasons, rec.IsFallback, rec.OverrideNote, rec.OverriddenBy, rec.OverriddenAt, rec.DecidedAt)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (r *repository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*Loan, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var l Loan
	err := r.db.GetContext(ctx, &l, `SELECT * FROM loans WHERE id = $1 AND user_id = $2`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Loan, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var loans []*Loan
	err := r.db.SelectContext(ctx, &loans, `
		SELECT * FROM loans WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	return loans, err
}

// LatestDecision returns nil when the loan was never decided
func (r *repository) LatestDecision(ctx context.Context, loanID uuid.UUID) (*DecisionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec DecisionRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT * FROM decision_ledger WHERE loan_id = $1 ORDER BY decided_at DESC LIMIT 1
	`, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetRiskScore returns nil when no score was written
func (r *repository) GetRiskScore(ctx context.Context, loanID uuid.UUID) (*RiskScore, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var s RiskScore
	err := r.db.GetContext(ctx, &s, `SELECT * FROM risk_scores WHERE loan_id = $1`, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListRepayments(ctx context.Context, loanID uuid.UUID) ([]*Repayment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []*Repayment
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM repayments WHERE loan_id = $1 ORDER BY sequence
	`, loanID)
	return out, err
}

func (r *repository) PendingRepayments(ctx context.Context, userID uuid.UUID) ([]*Repayment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []*Repayment
	err := r.db.SelectContext(ctx, &out, `
		SELECT rp.*
		FROM repayments rp
		JOIN loans l ON l.id = rp.loan_id
		WHERE l.user_id = $1 AND l.status = 'active' AND rp.status IN ('pending', 'missed')
		ORDER BY rp.due_date
	`, userID)
	return out, err
}

// assessmentRow is the outer-joined form of Assessment; PD is NULL when the
// latest loan has not been scored.
type assessmentRow struct {
	LoanID        uuid.UUID       `db:"loan_id"`
	PD            sql.NullFloat64 `db:"pd"`
	Reasons       pq.StringArray  `db:"reasons"`
	PolicyVersion string          `db:"policy_version"`
	AssessedAt    sql.NullTime    `db:"assessed_at"`
}

// LatestAssessment returns the risk view of the borrower's most recent loan, or
// nil when there is no loan or that loan carries no score.
func (r *repository) LatestAssessment(ctx context.Context, userID uuid.UUID) (*Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var a assessmentRow
	err := r.db.GetContext(ctx, &a, `
		SELECT l.id AS loan_id, rs.pd, rs.reasons,
		       COALESCE(d.policy_version, '') AS policy_version,
		       rs.created_at AS assessed_at
		FROM (
			SELECT id FROM loans
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) l
		LEFT JOIN risk_scores rs ON rs.loan_id = l.id
		LEFT JOIN LATERAL (
			SELECT policy_version FROM decision_ledger
			WHERE loan_id = l.id ORDER BY decided_at DESC LIMIT 1
		) d ON TRUE
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !a.PD.Valid {
		return nil, nil
	}
	return &Assessment{
		LoanID:        a.LoanID,
		PD:            a.PD.Float64,
		Reasons:       a.Reasons,
		PolicyVersion: a.PolicyVersion,
		AssessedAt:    a.AssessedAt.Time,
	}, nil
}

const applicationColumns = `
	l.*, p.name AS borrower_name, u.email AS borrower_email,
	rs.pd AS pd, d.model_version AS model_version, d.is_fallback AS is_fallback
`

const applicationJoins = `
	FROM loans l
	JOIN users u ON u.id = l.user_id
	LEFT JOIN profiles p ON p.user_id = l.user_id
	LEFT JOIN risk_scores rs ON rs.loan_id = l.id
	LEFT JOIN LATERAL (
		SELECT model_version, is_fallback FROM decision_ledger
		WHERE loan_id = l.id ORDER BY decided_at DESC LIMIT 1
	) d ON TRUE
`

func (r *repository) ListApplications(ctx context.Context, f ApplicationFilter) ([]*Application, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where := ""
	args := []interface{}{}
	if f.Status != "" {
		where = " WHERE l.status = $1"
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM loans l`+where, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`SELECT %s %s %s ORDER BY l.created_at DESC LIMIT $%d OFFSET $%d`,
		applicationColumns, applicationJoins, where, len(args)-1, len(args))

	var out []*Application
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Override flips an applied or declined loan. The latest ledger row is corrected in
// place; a loan that never reached the ledger gets a manual-override row instead.
func (r *repository) Override(ctx context.Context, in OverrideInput) (*Loan, Status, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback()

	var l Loan
	err = tx.GetContext(ctx, &l, `SELECT * FROM loans WHERE id = $1 FOR UPDATE`, in.LoanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrLoanNotFound
	}
	if err != nil {
		return nil, "", err
	}
	before := l.Status
	if !before.Overridable() {
		return nil, "", ErrOverrideNotAllowed
	}

	var ledgerID uuid.UUID
	err = tx.GetContext(ctx, &ledgerID, `
		SELECT id FROM decision_ledger WHERE loan_id = $1 ORDER BY decided_at DESC LIMIT 1
	`, in.LoanID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		note := in.Note
		adminID := in.AdminID
		at := in.At
		if err := insertDecision(ctx, tx, &DecisionRecord{
			ID:            uuid.New(),
			LoanID:        l.ID,
			UserID:        l.UserID,
			Inputs:        []byte(`{}`),
			ModelVersion:  ModelVersionOverride,
			PolicyVersion: in.PolicyVersion,
			Decision:      in.Decision,
			Reasons:       []string{},
			OverrideNote:  &note,
			OverriddenBy:  &adminID,
			OverriddenAt:  &at,
			DecidedAt:     in.At,
		}); err != nil {
			return nil, "", err
		}
	case err != nil:
		return nil, "", err
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE decision_ledger
			SET decision = $2, override_note = $3, overridden_by = $4, overridden_at = $5
			WHERE id = $1
		`, ledgerID, in.Decision, in.Note, in.AdminID, in.At); err != nil {
			return nil, "", err
		}
	}

	l.DecidedAt = &in.At
	l.UpdatedAt = in.At
	l.CounterOffer = nil
	if in.Decision == DecisionApprove {
		l.Status = StatusApproved
		l.ApprovedAt = &in.At
	} else {
		l.Status = StatusDeclined
		l.ApprovedAt = nil
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE loans
		SET status = $2, counter_offer = NULL, decided_at = $3, approved_at = $4, updated_at = $5
		WHERE id = $1
	`, l.ID, l.Status, l.DecidedAt, l.ApprovedAt, l.UpdatedAt); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	return &l, before, nil
}

func (r *repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM loans GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

func (r *repository) Tx(tx *sqlx.Tx) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx *sqlx.Tx
}

func (s *txStore) LockLoan(ctx context.Context, loanID, userID uuid.UUID) (*Loan, error) {
	var l Loan
	err := s.tx.GetContext(ctx, &l, `SELECT * FROM loans WHERE id = $1 AND user_id = $2 FOR UPDATE`, loanID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *txStore) Activate(ctx context.Context, l *Loan, schedule []*Repayment) error {
	if _, err := s.tx.ExecContext(ctx, `
		UPDATE loans SET status = $2, disbursed_at = $3, updated_at = $4 WHERE id = $1
	`, l.ID, l.Status, l.DisbursedAt, l.UpdatedAt); err != nil {
		return err
	}
	for _, rp := range schedule {
		if _, err := s.tx.ExecContext(ctx, `
			INSERT INTO repayments (id, loan_id, sequence, due_date, amount, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rp.ID, rp.LoanID, rp.Sequence, rp.DueDate, rp.Amount, rp.Status); err != nil {
			return fmt.Errorf("insert repayment %d: %w", rp.Sequence, err)
		}
	}
	return nil
}

// FindRepayment resolves a repayment through its loan's owner without locking.
func (s *txStore) FindRepayment(ctx context.Context, repaymentID, userID uuid.UUID) (*Repayment, error) {
	var rp Repayment
	err := s.tx.GetContext(ctx, &rp, `
		SELECT rp.* FROM repayments rp
		JOIN loans l ON l.id = rp.loan_id
		WHERE rp.id = $1 AND l.user_id = $2
	`, repaymentID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRepaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rp, nil
}

func (s *txStore) LockRepayment(ctx context.Context, repaymentID uuid.UUID) (*Repayment, error) {
	var rp Repayment
	err := s.tx.GetContext(ctx, &rp, `SELECT * FROM repayments WHERE id = $1 FOR UPDATE`, repaymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRepaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rp, nil
}

func (s *txStore) MarkRepaymentPaid(ctx context.Context, rp *Repayment) error {
	_, err := s.tx.ExecContext(ctx, `
		UPDATE repayments SET status = $2, paid_at = $3 WHERE id = $1
	`, rp.ID, rp.Status, rp.PaidAt)
	return err
}

func (s *txStore) ListRepayments(ctx context.Context, loanID uuid.UUID) ([]*Repayment, error) {
	var out []*Repayment
	err := s.tx.SelectContext(ctx, &out, `SELECT * FROM repayments WHERE loan_id = $1 ORDER BY sequence`, loanID)
	return out, err
}

func (s *txStore) Complete(ctx context.Context, l *Loan) error {
	_, err := s.tx.ExecContext(ctx, `
		UPDATE loans SET status = $2, completed_at = $3, updated_at = $4 WHERE id = $1
	`, l.ID, l.Status, l.CompletedAt, l.UpdatedAt)
	return err
}
