package claims

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scope names a category of disclosable information
type Scope string

const (
	ScopeBasicProfile  Scope = "basic_profile"
	ScopeReliability   Scope = "reliability"
	ScopeRiskSnapshot  Scope = "risk_snapshot"
	ScopeCreditPathway Scope = "credit_pathway"
)

// AllScopes in canonical order
var AllScopes = []Scope{ScopeBasicProfile, ScopeReliability, ScopeRiskSnapshot, ScopeCreditPathway}

// Valid reports whether s is one of the fixed scopes
func (s Scope) Valid() bool {
	for _, known := range AllScopes {
		if s == known {
			return true
		}
	}
	return false
}

// BasicProfile discloses identity with the name reduced to its initial
type BasicProfile struct {
	LiwaywaiID  string    `json:"liwaywai_id"`
	KYCLevel    string    `json:"kyc_level"`
	JoinDate    time.Time `json:"join_date"`
	NameInitial string    `json:"name_initial"`
}

// ReliabilityProgress is the streak against the current level's requirement
type ReliabilityProgress struct {
	Completed  int     `json:"completed"`
	Required   int     `json:"required"`
	Percentage float64 `json:"percentage"`
}

// ReliabilityMetrics are the lifetime repayment counters
type ReliabilityMetrics struct {
	TotalLoans int     `json:"total_loans"`
	OnTimePaid int     `json:"on_time_paid"`
	LatePaid   int     `json:"late_paid"`
	OnTimeRate float64 `json:"on_time_rate"`
}

// Reliability discloses the borrower's ladder position
type Reliability struct {
	Level              int                 `json:"level"`
	LevelBadge         string              `json:"level_badge"`
	UnlockedCap        decimal.Decimal     `json:"unlocked_cap"`
	Streak             int                 `json:"streak"`
	Progress           ReliabilityProgress `json:"progress"`
	ReliabilityMetrics ReliabilityMetrics  `json:"reliability_metrics"`
}

// RiskSnapshot discloses the latest assessment. PDValue, Reasons and
// AssessmentDate are empty when the borrower was never assessed.
type RiskSnapshot struct {
	PDBand         string     `json:"pd_band"`
	PDValue        *float64   `json:"pd_value,omitempty"`
	Reasons        []string   `json:"reasons,omitempty"`
	AssessmentDate *time.Time `json:"assessment_date"`
	PolicyVersion  string     `json:"policy_version"`
}

// CreditPathway discloses what unlocks the next cap
type CreditPathway struct {
	CurrentCap        decimal.Decimal `json:"current_cap"`
	NextCap           decimal.Decimal `json:"next_cap"`
	ActionsToLevelUp  []string        `json:"actions_to_level_up"`
	EstimatedTimeline string          `json:"estimated_timeline"`
}

// Claims holds exactly one section per authorized scope; the rest stay nil.
type Claims struct {
	Scopes        []Scope        `json:"scopes"`
	BasicProfile  *BasicProfile  `json:"basic_profile,omitempty"`
	Reliability   *Reliability   `json:"reliability,omitempty"`
	RiskSnapshot  *RiskSnapshot  `json:"risk_snapshot,omitempty"`
	CreditPathway *CreditPathway `json:"credit_pathway,omitempty"`
}

// Metadata describes the share the claims were issued under
type Metadata struct {
	TokenID   uuid.UUID `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Scopes    []Scope   `json:"scopes"`
	RPLabel   string    `json:"rp_label"`
}

// Result is what a relying party receives for a valid token
type Result struct {
	Claims      *Claims  `json:"claims"`
	SignedToken string   `json:"signed_token"`
	Metadata    Metadata `json:"metadata"`
}
