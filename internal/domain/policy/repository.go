package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Repository persists policy versions
type Repository interface {
	// Publish inserts v and, when activate is set, makes it the single active version
	// in the same transaction.
	Publish(ctx context.Context, v *Version, activate bool) error
	Activate(ctx context.Context, version string) error
	GetActive(ctx context.Context) (*Version, error)
	GetByVersion(ctx context.Context, version string) (*Version, error)
	List(ctx context.Context, limit int) ([]*Version, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates policy repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Publish(ctx context.Context, v *Version, activate bool) error {
	raw, err := json.Marshal(v.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	v.RawParams = raw

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO policy_versions (id, version, params, is_active, created_by, created_at)
		VALUES ($1, $2, $3, FALSE, $4, $5)
	`, v.ID, v.Version, v.RawParams, v.CreatedBy, v.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrVersionExists
		}
		return err
	}

	if activate {
		if err := activateTx(ctx, tx, v.Version); err != nil {
			return err
		}
		v.IsActive = true
	}

	return tx.Commit()
}

func (r *repository) Activate(ctx context.Context, version string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := activateTx(ctx, tx, version); err != nil {
		return err
	}
	return tx.Commit()
}

// activateTx flips the active flag. Both updates share the caller's transaction, and
// the partial unique index on is_active rejects any interleaving that would leave two
// rows active.
func activateTx(ctx context.Context, tx *sqlx.Tx, version string) error {
	var id string
	err := tx.GetContext(ctx, &id, `SELECT id FROM policy_versions WHERE version = $1 FOR UPDATE`, version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrVersionNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE policy_versions SET is_active = FALSE WHERE is_active AND id <> $1`, id); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE policy_versions SET is_active = TRUE WHERE id = $1`, id)
	return err
}

func (r *repository) GetActive(ctx context.Context) (*Version, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var v Version
	err := r.db.GetContext(ctx, &v, `SELECT * FROM policy_versions WHERE is_active LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActivePolicy
	}
	if err != nil {
		return nil, err
	}
	return &v, decodeParams(&v)
}

func (r *repository) GetByVersion(ctx context.Context, version string) (*Version, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var v Version
	err := r.db.GetContext(ctx, &v, `SELECT * FROM policy_versions WHERE version = $1`, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, decodeParams(&v)
}

func (r *repository) List(ctx context.Context, limit int) ([]*Version, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var versions []*Version
	if err := r.db.SelectContext(ctx, &versions, `
		SELECT * FROM policy_versions ORDER BY created_at DESC LIMIT $1
	`, limit); err != nil {
		return nil, err
	}
	for _, v := range versions {
		if err := decodeParams(v); err != nil {
			return nil, err
		}
	}
	return versions, nil
}

func decodeParams(v *Version) error {
	if err := json.Unmarshal(v.RawParams, &v.Params); err != nil {
		return fmt.Errorf("decode params for %s: %w", v.Version, err)
	}
	return nil
}
