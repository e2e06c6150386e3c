package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// topBuckets limits the open-ended breakdowns
const topBuckets = 10

// Repository defines profile data access
type Repository interface {
	Create(ctx context.Context, tx *sqlx.Tx, p *Profile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	Demographics(ctx context.Context) (*Demographics, error)
}

type repository struct{ db *sqlx.DB }

func NewRepository(db *sqlx.DB) Repository { return &repository{db: db} }

func (r *repository) Create(ctx context.Context, tx *sqlx.Tx, p *Profile) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, name, city, occupation, gender, kyc_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.UserID, p.Name, p.City, p.Occupation, p.Gender, p.KYCLevel, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("profile repository create: %w", err)
	}
	return nil
}

func (r *repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Profile
	err := r.db.GetContext(ctx, &p, `
		SELECT user_id, name, city, occupation, gender, kyc_level, created_at, updated_at
		FROM profiles WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Update(ctx context.Context, p *Profile) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET name = $2, city = $3, occupation = $4, gender = $5, updated_at = $6
		WHERE user_id = $1
	`, p.UserID, p.Name, p.City, p.Occupation, p.Gender, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("profile repository update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *repository) Demographics(ctx context.Context) (*Demographics, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	breakdown := func(column string, limit int) ([]Bucket, error) {
		var out []Bucket
		err := r.db.SelectContext(ctx, &out, `
			SELECT COALESCE(NULLIF(p.`+column+`, ''), 'unspecified') AS value, COUNT(*) AS count
			FROM profiles p
			JOIN users u ON u.id = p.user_id
			WHERE u.role = 'borrower'
			GROUP BY 1
			ORDER BY count DESC, value
			LIMIT $1
		`, limit)
		if out == nil {
			out = []Bucket{}
		}
		return out, err
	}

	var (
		d   Demographics
		err error
	)
	if d.Gender, err = breakdown("gender", topBuckets); err != nil {
		return nil, err
	}
	if d.Occupation, err = breakdown("occupation", topBuckets); err != nil {
		return nil, err
	}
	if d.City, err = breakdown("city", topBuckets); err != nil {
		return nil, err
	}
	return &d, nil
}
