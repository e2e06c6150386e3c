package share

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/liwaywai/lending-api/internal/domain/claims"
)

// TokenStatus is the display state of a share token
type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenExpired TokenStatus = "expired"
	TokenRevoked TokenStatus = "revoked"
)

// AccessStatus is the outcome of one presentation of a raw token
type AccessStatus string

const (
	AccessSuccess AccessStatus = "success"
	AccessExpired AccessStatus = "expired"
	AccessRevoked AccessStatus = "revoked"
	AccessInvalid AccessStatus = "invalid"
)

// Token is a stored share grant. Only the hash of the bearer secret is kept.
type Token struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	UserID    uuid.UUID      `db:"user_id" json:"user_id"`
	TokenHash string         `db:"token_hash" json:"-"`
	Scopes    pq.StringArray `db:"scopes" json:"scopes"`
	RPLabel   string         `db:"rp_label" json:"rp_label"`
	ExpiresAt time.Time      `db:"expires_at" json:"expires_at"`
	RevokedAt *time.Time     `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Status reports revoked before expired, matching what the owner did last
func (t *Token) Status(now time.Time) TokenStatus {
	switch {
	case t.RevokedAt != nil:
		return TokenRevoked
	case !now.Before(t.ExpiresAt):
		return TokenExpired
	default:
		return TokenActive
	}
}

// ScopeList converts the stored scopes
func (t *Token) ScopeList() []claims.Scope {
	out := make([]claims.Scope, len(t.Scopes))
	for i, s := range t.Scopes {
		out[i] = claims.Scope(s)
	}
	return out
}

// AccessLog is one row of the append-only presentation trail.
// ShareTokenID is nil for invalid presentations.
type AccessLog struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	ShareTokenID    *uuid.UUID     `db:"share_token_id" json:"share_token_id,omitempty"`
	UserID          *uuid.UUID     `db:"user_id" json:"-"`
	Status          AccessStatus   `db:"status" json:"status"`
	RequesterIP     string         `db:"requester_ip" json:"requester_ip"`
	UserAgent       string         `db:"user_agent" json:"user_agent,omitempty"`
	ScopesDisclosed pq.StringArray `db:"scopes_disclosed" json:"scopes_disclosed"`
	AccessedAt      time.Time      `db:"accessed_at" json:"accessed_at"`
}

// TokenSummary is a token with its access counters
type TokenSummary struct {
	Token
	Status         TokenStatus `db:"-" json:"status"`
	AccessCount    int         `db:"access_count" json:"access_count"`
	LastAccessedAt *time.Time  `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
}

// AuditEntry is a token as the admin share audit shows it
type AuditEntry struct {
	TokenSummary
	BorrowerEmail string       `db:"borrower_email" json:"borrower_email"`
	AccessLogs    []*AccessLog `db:"-" json:"access_logs"`
}

// Requester describes who presented a token
type Requester struct {
	IP        string
	UserAgent string
}
