package level

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome classifies how a borrower settled a completed loan
type Outcome string

const (
	OutcomeEarly  Outcome = "early"
	OutcomeOnTime Outcome = "ontime"
	OutcomeLate   Outcome = "late"
)

// Valid reports whether o is a known outcome
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeEarly, OutcomeOnTime, OutcomeLate:
		return true
	}
	return false
}

// Good reports whether o counts towards the streak
func (o Outcome) Good() bool {
	return o == OutcomeEarly || o == OutcomeOnTime
}

// Record is a borrower's position on the trust ladder. One row per user.
type Record struct {
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Level       int             `db:"level" json:"level"`
	Streak      int             `db:"streak" json:"streak"`
	UnlockedCap decimal.Decimal `db:"unlocked_cap" json:"unlocked_cap"`
	TotalLoans  int             `db:"total_loans" json:"total_loans"`
	OnTimePaid  int             `db:"on_time_paid" json:"on_time_paid"`
	LatePaid    int             `db:"late_paid" json:"late_paid"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// OnTimeRate is onTimePaid / totalLoans, zero for a borrower with no completed loans.
func (r Record) OnTimeRate() float64 {
	if r.TotalLoans == 0 {
		return 0
	}
	return float64(r.OnTimePaid) / float64(r.TotalLoans)
}

// Progress is what a payment outcome did to the ladder
type Progress struct {
	LevelChanged         bool            `json:"level_changed"`
	NewLevel             int             `json:"new_level"`
	NewCap               decimal.Decimal `json:"new_cap"`
	NewPerksUnlocked     []string        `json:"new_perks_unlocked"`
	CurrentStreak        int             `json:"current_streak"`
	NextLevelRequirement int             `json:"next_level_requirement"`
	LevelName            string          `json:"level_name"`
	NextLevelName        string          `json:"next_level_name"`
}

// DigitalIDCard is the read model of Record plus identity. Only the level
// service writes it.
type DigitalIDCard struct {
	UserID         uuid.UUID       `db:"user_id" json:"-"`
	LiwaywaiID     string          `db:"liwaywai_id" json:"liwaywai_id"`
	LevelSnapshot  int             `db:"level_snapshot" json:"level"`
	LevelName      string          `db:"level_name" json:"level_name"`
	CapCurrent     decimal.Decimal `db:"cap_current" json:"cap_current"`
	CapNext        decimal.Decimal `db:"cap_next" json:"cap_next"`
	Streak         int             `db:"streak" json:"streak"`
	RequiredStreak int             `db:"required_streak" json:"required_streak"`
	Progress       float64         `db:"progress" json:"progress"`
	PolicyVersion  string          `db:"policy_version" json:"policy_version"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// CardView is the card joined with the identity fields it is issued for
type CardView struct {
	DigitalIDCard
	Name     string    `db:"name" json:"name"`
	KYCLevel string    `db:"kyc_level" json:"kyc_level"`
	JoinDate time.Time `db:"join_date" json:"join_date"`
}

// Info is the borrower-facing level summary
type Info struct {
	CurrentLevel   int              `json:"current_level"`
	LevelName      string           `json:"level_name"`
	CurrentCap     decimal.Decimal  `json:"current_cap"`
	Streak         int              `json:"streak"`
	TotalLoans     int              `json:"total_loans"`
	OnTimePaid     int              `json:"on_time_paid"`
	LatePaid       int              `json:"late_paid"`
	OnTimeRate     float64          `json:"on_time_rate"`
	NextLevel      *int             `json:"next_level"`
	NextLevelName  string           `json:"next_level_name"`
	NextLevelCap   *decimal.Decimal `json:"next_level_cap"`
	PaymentsNeeded int              `json:"payments_needed"`
	Progress       float64          `json:"progress"`
	CurrentPerks   []string         `json:"current_perks"`
	NextLevelPerks []string         `json:"next_level_perks"`
	IsMaxLevel     bool             `json:"is_max_level"`
	PolicyVersion  string           `json:"policy_version"`
}
