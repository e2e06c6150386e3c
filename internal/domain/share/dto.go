package share

import (
	"time"

	"github.com/google/uuid"

	"github.com/liwaywai/lending-api/internal/domain/claims"
)

const (
	DefaultTTLMinutes = 10
	MaxTTLMinutes     = 1440
	DefaultRPLabel    = "Unknown RP"
)

// MintRequest is the body of POST /shares
type MintRequest struct {
	Scopes     []string `json:"scopes" validate:"required,min=1,dive,scope"`
	RPLabel    string   `json:"rp_label" validate:"max=100"`
	TTLMinutes int      `json:"ttl_minutes" validate:"gte=0,lte=1440"`
}

// MintResult carries the raw secret exactly once, inside ShareURL
type MintResult struct {
	TokenID   uuid.UUID      `json:"token_id"`
	ShareURL  string         `json:"share_url"`
	QRSVG     string         `json:"qr_svg"`
	QRPNG     string         `json:"qr_png"`
	ExpiresAt time.Time      `json:"expires_at"`
	Scopes    []claims.Scope `json:"scopes"`
	RPLabel   string         `json:"rp_label"`
}

// Presentation is the outcome of presenting a raw token. Result is set only
// on success.
type Presentation struct {
	Status AccessStatus
	Result *claims.Result
}

// VerifyRequest is the body of POST /rp/verify
type VerifyRequest struct {
	Token string `json:"token" validate:"required"`
}

// VerifyResult is what a relying party gets back for a signed claims token
type VerifyResult struct {
	Valid      bool                 `json:"valid"`
	Claims     *claims.SignedClaims `json:"claims,omitempty"`
	VerifiedAt time.Time            `json:"verified_at"`
}

// AuditFilter narrows the admin share audit
type AuditFilter struct {
	From   *time.Time
	To     *time.Time
	Status TokenStatus
	Page   int
	Limit  int
}

func (f *AuditFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 50
	}
}
