package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository stores the admin audit trail
type Repository interface {
	CreateAuditLog(ctx context.Context, entry *AuditLog) error
	ListAuditLogs(ctx context.Context, f AuditLogFilter) ([]*AuditLog, int, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates admin repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateAuditLog(ctx context.Context, entry *AuditLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_audit_logs (id, admin_id, action, entity_type, entity_id, old_value, new_value, reason, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID,
		entry.AdminID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		nullJSON(entry.OldValue),
		nullJSON(entry.NewValue),
		entry.Reason,
		entry.IPAddress,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("admin repository create audit log: %w", err)
	}
	return nil
}

func (r *repository) ListAuditLogs(ctx context.Context, f AuditLogFilter) ([]*AuditLog, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where := ` WHERE ($1 = '' OR a.action = $1)`

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM admin_audit_logs a`+where, f.Action); err != nil {
		return nil, 0, err
	}

	var logs []*AuditLog
	err := r.db.SelectContext(ctx, &logs, `
		SELECT a.id, a.admin_id, u.email AS admin_email, a.action, a.entity_type, a.entity_id,
		       COALESCE(a.old_value, 'null'::jsonb) AS old_value, COALESCE(a.new_value, 'null'::jsonb) AS new_value, a.reason, a.ip_address, a.created_at
		FROM admin_audit_logs a
		JOIN users u ON u.id = a.admin_id`+where+`
		ORDER BY a.created_at DESC
		LIMIT $2 OFFSET $3
	`, f.Action, f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
