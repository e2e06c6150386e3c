package admin

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/loan"
	"github.com/liwaywai/lending-api/internal/domain/profile"
	"github.com/liwaywai/lending-api/internal/domain/share"
	"github.com/liwaywai/lending-api/internal/domain/user"
	"github.com/liwaywai/lending-api/internal/domain/wallet"
)

// Audit actions
const (
	ActionLoanOverride  = "loan.override"
	ActionPolicyPublish = "policy.publish"
)

// AuditLog represents an admin action log entry
type AuditLog struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	AdminID    uuid.UUID       `db:"admin_id" json:"admin_id"`
	AdminEmail string          `db:"admin_email" json:"admin_email,omitempty"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	OldValue   json.RawMessage `db:"old_value" json:"old_value,omitempty"`
	NewValue   json.RawMessage `db:"new_value" json:"new_value,omitempty"`
	Reason     string          `db:"reason" json:"reason,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Borrower is the 360 view of one borrower
type Borrower struct {
	User    *user.User            `json:"user"`
	Profile *profile.Profile      `json:"profile,omitempty"`
	Level   *level.Record         `json:"level,omitempty"`
	Card    *level.CardView       `json:"digital_id,omitempty"`
	Loans   []*loan.Loan          `json:"loans"`
	Shares  []*share.TokenSummary `json:"shares"`
	Wallet  *wallet.Wallet        `json:"wallet,omitempty"`
}

// Dashboard aggregates platform-wide figures
type Dashboard struct {
	Borrowers           int                   `json:"total_borrowers"`
	Loans               int                   `json:"total_loans"`
	LoansByStatus       map[loan.Status]int   `json:"loans_by_status"`
	ActiveLoans         int                   `json:"active_loans"`
	PendingApplications int                   `json:"pending_applications"`
	ApprovalRate        decimal.Decimal       `json:"approval_rate"`
	RecentLoans         []*loan.Application   `json:"recent_loans"`
	RecentShares        []*share.AuditEntry   `json:"recent_shares"`
	LevelDistribution   []level.LevelCount    `json:"level_distribution"`
	Demographics        *profile.Demographics `json:"demographics"`
	PolicyVersion       string                `json:"policy_version,omitempty"`
}
