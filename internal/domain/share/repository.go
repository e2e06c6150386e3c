package share

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Repository defines share token data access
type Repository interface {
	Create(ctx context.Context, t *Token) error
	// ListStored returns every token not yet reaped, newest first.
	ListStored(ctx context.Context) ([]*Token, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*TokenSummary, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*Token, error)
	Revoke(ctx context.Context, id, userID uuid.UUID, at time.Time) (*Token, error)
	LogAccess(ctx context.Context, l *AccessLog) error
	AccessLogs(ctx context.Context, tokenIDs ...uuid.UUID) ([]*AccessLog, error)
	Audit(ctx context.Context, f AuditFilter, now time.Time) ([]*AuditEntry, int, error)
	ListExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Token, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates share repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const tokenColumns = `id, user_id, token_hash, scopes, rp_label, expires_at, revoked_at, created_at`

func (r *repository) Create(ctx context.Context, t *Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO share_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.UserID, t.TokenHash, t.Scopes, t.RPLabel, t.ExpiresAt, t.RevokedAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert share token: %w", err)
	}
	return nil
}

func (r *repository) ListStored(ctx context.Context) ([]*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var tokens []*Token
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT `+tokenColumns+` FROM share_tokens ORDER BY created_at DESC
	`)
	return tokens, err
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*TokenSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []*TokenSummary
	err := r.db.SelectContext(ctx, &out, `
		SELECT t.id, t.user_id, t.token_hash, t.scopes, t.rp_label, t.expires_at, t.revoked_at, t.created_at,
		       COUNT(l.id) FILTER (WHERE l.status = 'success') AS access_count,
		       MAX(l.accessed_at) AS last_accessed_at
		FROM share_tokens t
		LEFT JOIN share_access_logs l ON l.share_token_id = t.id
		WHERE t.user_id = $1
		GROUP BY t.id
		ORDER BY t.created_at DESC
		LIMIT $2
	`, userID, limit)
	return out, err
}

func (r *repository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t Token
	err := r.db.GetContext(ctx, &t, `
		SELECT `+tokenColumns+` FROM share_tokens WHERE id = $1 AND user_id = $2
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) Revoke(ctx context.Context, id, userID uuid.UUID, at time.Time) (*Token, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var t Token
	err = tx.GetContext(ctx, &t, `
		SELECT `+tokenColumns+` FROM share_tokens WHERE id = $1 AND user_id = $2 FOR UPDATE
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.RevokedAt != nil {
		return nil, ErrAlreadyRevoked
	}

	if _, err := tx.ExecContext(ctx, `UPDATE share_tokens SET revoked_at = $2 WHERE id = $1`, id, at); err != nil {
		return nil, fmt.Errorf("revoke share token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	t.RevokedAt = &at
	return &t, nil
}

func (r *repository) LogAccess(ctx context.Context, l *AccessLog) error {
	if l.ScopesDisclosed == nil {
		l.ScopesDisclosed = pq.StringArray{}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO share_access_logs (id, share_token_id, user_id, status, requester_ip, user_agent, scopes_disclosed, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, l.ID, l.ShareTokenID, l.UserID, l.Status, l.RequesterIP, l.UserAgent, l.ScopesDisclosed, l.AccessedAt)
	if err != nil {
		return fmt.Errorf("insert share access log: %w", err)
	}
	return nil
}

func (r *repository) AccessLogs(ctx context.Context, tokenIDs ...uuid.UUID) ([]*AccessLog, error) {
	if len(tokenIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ids := make(pq.StringArray, len(tokenIDs))
	for i, id := range tokenIDs {
		ids[i] = id.String()
	}

	var logs []*AccessLog
	err := r.db.SelectContext(ctx, &logs, `
		SELECT id, share_token_id, user_id, status, requester_ip, user_agent, scopes_disclosed, accessed_at
		FROM share_access_logs
		WHERE share_token_id = ANY($1::uuid[])
		ORDER BY accessed_at DESC
	`, ids)
	return logs, err
}

func (r *repository) Audit(ctx context.Context, f AuditFilter, now time.Time) ([]*AuditEntry, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var where []string
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.From != nil {
		where = append(where, "t.created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "t.created_at <= "+arg(*f.To))
	}
	switch f.Status {
	case TokenActive:
		where = append(where, "t.revoked_at IS NULL AND t.expires_at > "+arg(now))
	case TokenExpired:
		where = append(where, "t.revoked_at IS NULL AND t.expires_at <= "+arg(now))
	case TokenRevoked:
		where = append(where, "t.revoked_at IS NOT NULL")
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM share_tokens t `+clause, args...); err != nil {
		return nil, 0, err
	}

	limit := arg(f.Limit)
	offset := arg((f.Page - 1) * f.Limit)

	var out []*AuditEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT t.id, t.user_id, t.token_hash, t.scopes, t.rp_label, t.expires_at, t.revoked_at, t.created_at,
		       u.email AS borrower_email,
		       COUNT(l.id) AS access_count,
		       MAX(l.accessed_at) AS last_accessed_at
		FROM share_tokens t
		JOIN users u ON u.id = t.user_id
		LEFT JOIN share_access_logs l ON l.share_token_id = t.id
		`+clause+`
		GROUP BY t.id, u.email
		ORDER BY t.created_at DESC
		LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) ListExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var tokens []*Token
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT `+tokenColumns+` FROM share_tokens
		WHERE expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, cutoff, limit)
	return tokens, err
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM share_tokens WHERE id = $1`, id)
	return err
}
