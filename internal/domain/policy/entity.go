package policy

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxLevel is the top of the trust ladder
const MaxLevel = 10

// DefaultVersion names the policy installed on a fresh database
const DefaultVersion = "v1.0.0"

// Thresholds are the probability-of-default cut-offs the scorer is expected to honour
type Thresholds struct {
	Approve float64 `json:"approve"`
	Counter float64 `json:"counter"`
}

// Params is the full content of a policy version. Keys of the maps are levels 0..MaxLevel.
type Params struct {
	Caps                 map[int]decimal.Decimal `json:"caps"`
	StreakRequirements   map[int]int             `json:"streak_requirements"`
	LevelNames           map[int]string          `json:"level_names"`
	Perks                map[int][]string        `json:"perks"`
	PDThresholds         Thresholds              `json:"pd_thresholds"`
	OneActiveLoan        bool                    `json:"one_active_loan"`
	MaxLoanTermWeeks     int                     `json:"max_loan_term_weeks"`
	FallbackApproveRatio decimal.Decimal         `json:"fallback_approve_ratio"`
}

// Version is a stored, immutable policy version
type Version struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Version   string     `db:"version" json:"version"`
	Params    Params     `db:"-" json:"params"`
	RawParams []byte     `db:"params" json:"-"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedBy *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
