package level

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// TxStore reads and writes level state inside a caller-owned transaction.
// LockRecord holds the row lock until that transaction ends, which is what
// serializes concurrent payment outcomes for one borrower.
type TxStore interface {
	Insert(ctx context.Context, rec *Record, card *DigitalIDCard) error
	LockRecord(ctx context.Context, userID uuid.UUID) (*Record, error)
	SaveRecord(ctx context.Context, rec *Record) error
	GetCard(ctx context.Context, userID uuid.UUID) (*DigitalIDCard, error)
	SaveCard(ctx context.Context, card *DigitalIDCard) error
}

// LevelCount is one bucket of the level distribution
type LevelCount struct {
	Level int `db:"level" json:"level"`
	Count int `db:"count" json:"count"`
}

// Repository defines level data access
type Repository interface {
	GetRecord(ctx context.Context, userID uuid.UUID) (*Record, error)
	GetCardView(ctx context.Context, userID uuid.UUID) (*CardView, error)
	Distribution(ctx context.Context) ([]LevelCount, error)
	Tx(tx *sqlx.Tx) TxStore
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates level repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetRecord(ctx context.Context, userID uuid.UUID) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec Record
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM levels WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repository) GetCardView(ctx context.Context, userID uuid.UUID) (*CardView, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var v CardView
	err := r.db.GetContext(ctx, &v, `
		SELECT c.*, p.name, p.kyc_level, u.created_at AS join_date
		FROM digital_id_cards c
		JOIN users u ON u.id = c.user_id
		JOIN profiles p ON p.user_id = c.user_id
		WHERE c.user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repository) Distribution(ctx context.Context) ([]LevelCount, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []LevelCount
	err := r.db.SelectContext(ctx, &out, `
		SELECT level, COUNT(*) AS count FROM levels GROUP BY level ORDER BY level
	`)
	return out, err
}

func (r *repository) Tx(tx *sqlx.Tx) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx *sqlx.Tx
}

func (s *txStore) Insert(ctx context.Context, rec *Record, card *DigitalIDCard) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO levels (user_id, level, streak, unlocked_cap, total_loans, on_time_paid, late_paid, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.UserID, rec.Level, rec.Streak, rec.UnlockedCap, rec.TotalLoans, rec.OnTimePaid, rec.LatePaid, rec.UpdatedAt)
	if err != nil {
		return err
	}

	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO digital_id_cards (
			user_id, liwaywai_id, level_snapshot, level_name, cap_current, cap_next,
			streak, required_streak, progress, policy_version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, card.UserID, card.LiwaywaiID, card.LevelSnapshot, card.LevelName, card.CapCurrent, card.CapNext,
		card.Streak, card.RequiredStreak, card.Progress, card.PolicyVersion, card.CreatedAt, card.UpdatedAt)
	return err
}

func (s *txStore) LockRecord(ctx context.Context, userID uuid.UUID) (*Record, error) {
	var rec Record
	err := s.tx.GetContext(ctx, &rec, `SELECT * FROM levels WHERE user_id = $1 FOR UPDATE`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *txStore) SaveRecord(ctx context.Context, rec *Record) error {
	_, err := s.tx.ExecContext(ctx, `
		UPDATE levels
		SET level = $2, streak = $3, unlocked_cap = $4, total_loans = $5,
		    on_time_paid = $6, late_paid = $7, updated_at = $8
		WHERE user_id = $1
	`, rec.UserID, rec.Level, rec.Streak, rec.UnlockedCap, rec.TotalLoans, rec.OnTimePaid, rec.LatePaid, rec.UpdatedAt)
	return err
}

func (s *txStore) GetCard(ctx context.Context, userID uuid.UUID) (*DigitalIDCard, error) {
	var card DigitalIDCard
	err := s.tx.GetContext(ctx, &card, `SELECT * FROM digital_id_cards WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (s *txStore) SaveCard(ctx context.Context, card *DigitalIDCard) error {
	_, err := s.tx.ExecContext(ctx, `
		UPDATE digital_id_cards
		SET level_snapshot = $2, level_name = $3, cap_current = $4, cap_next = $5,
		    streak = $6, required_streak = $7, progress = $8, policy_version = $9, updated_at = $10
		WHERE user_id = $1
	`, card.UserID, card.LevelSnapshot, card.LevelName, card.CapCurrent, card.CapNext,
		card.Streak, card.RequiredStreak, card.Progress, card.PolicyVersion, card.UpdatedAt)
	return err
}
