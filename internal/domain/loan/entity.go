package loan

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Status is the loan lifecycle state
type Status string

const (
	StatusApplied        Status = "applied"
	StatusApproved       Status = "approved"
	StatusDeclined       Status = "declined"
	StatusCounterOffered Status = "counter_offered"
	StatusActive         Status = "active"
	StatusCompleted      Status = "completed"
	StatusDefaulted      Status = "defaulted"
)

// Open reports whether a loan in s blocks a new application
func (s Status) Open() bool {
	return s == StatusApproved || s == StatusActive
}

// Overridable reports whether an admin may still flip the decision
func (s Status) Overridable() bool {
	return s == StatusApplied || s == StatusDeclined
}

// Decision is the engine's verdict on an application
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDecline Decision = "decline"
	DecisionCounter Decision = "counter"
)

// CounterOffer is stored as JSONB on the loan
type CounterOffer struct {
	Amount    decimal.Decimal `json:"amount"`
	TermWeeks int             `json:"term_weeks"`
	Reason    string          `json:"reason"`
}

func (c CounterOffer) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *CounterOffer) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.New("counter_offer: unsupported column type")
	}
}

// Loan entity
type Loan struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	UserID       uuid.UUID       `db:"user_id" json:"user_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	TermWeeks    int             `db:"term_weeks" json:"term_weeks"`
	Purpose      string          `db:"purpose" json:"purpose"`
	Status       Status          `db:"status" json:"status"`
	LevelAtApply int             `db:"level_at_apply" json:"level_at_apply"`
	CounterOffer *CounterOffer   `db:"counter_offer" json:"counter_offer,omitempty"`
	DecidedAt    *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
	ApprovedAt   *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	DisbursedAt  *time.Time      `db:"disbursed_at" json:"disbursed_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// DecisionRecord is one row of the decision ledger. Append-only except for
// the override columns.
type DecisionRecord struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	LoanID        uuid.UUID       `db:"loan_id" json:"loan_id"`
	UserID        uuid.UUID       `db:"user_id" json:"user_id"`
	Inputs        json.RawMessage `db:"inputs" json:"inputs"`
	ModelVersion  string          `db:"model_version" json:"model_version"`
	PolicyVersion string          `db:"policy_version" json:"policy_version"`
	Decision      Decision        `db:"decision" json:"decision"`
	Reasons       pq.StringArray  `db:"reasons" json:"reasons"`
	IsFallback    bool            `db:"is_fallback" json:"is_fallback"`
	OverrideNote  *string         `db:"override_note" json:"override_note,omitempty"`
	OverriddenBy  *uuid.UUID      `db:"overridden_by" json:"overridden_by,omitempty"`
	OverriddenAt  *time.Time      `db:"overridden_at" json:"overridden_at,omitempty"`
	DecidedAt     time.Time       `db:"decided_at" json:"decided_at"`
}

// RiskScore is the probability of default recorded for a loan. Written once.
type RiskScore struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	LoanID             uuid.UUID      `db:"loan_id" json:"loan_id"`
	PD                 float64        `db:"pd" json:"pd"`
	Reasons            pq.StringArray `db:"reasons" json:"reasons"`
	CounterfactualHint *string        `db:"counterfactual_hint" json:"counterfactual_hint,omitempty"`
	ModelVersion       string         `db:"model_version" json:"model_version"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
}

// RepaymentStatus of one instalment
type RepaymentStatus string

const (
	RepaymentPending RepaymentStatus = "pending"
	RepaymentPaid    RepaymentStatus = "paid"
	RepaymentLate    RepaymentStatus = "late"
	RepaymentMissed  RepaymentStatus = "missed"
)

// Settled reports whether the instalment no longer needs paying
func (s RepaymentStatus) Settled() bool {
	return s == RepaymentPaid || s == RepaymentLate
}

// Repayment is one scheduled instalment
type Repayment struct {
	ID       uuid.UUID       `db:"id" json:"id"`
	LoanID   uuid.UUID       `db:"loan_id" json:"loan_id"`
	Sequence int             `db:"sequence" json:"sequence"`
	DueDate  time.Time       `db:"due_date" json:"due_date"`
	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Status   RepaymentStatus `db:"status" json:"status"`
	PaidAt   *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
}

// Assessment is the latest risk view of a borrower, as disclosed in claims
type Assessment struct {
	LoanID        uuid.UUID      `db:"loan_id"`
	PD            float64        `db:"pd"`
	Reasons       pq.StringArray `db:"reasons"`
	PolicyVersion string         `db:"policy_version"`
	AssessedAt    time.Time      `db:"assessed_at"`
}

// Application is a loan as listed for admins, with borrower and scoring context
type Application struct {
	Loan
	BorrowerName  *string  `db:"borrower_name" json:"borrower_name"`
	BorrowerEmail string   `db:"borrower_email" json:"borrower_email"`
	PD            *float64 `db:"pd" json:"pd,omitempty"`
	PDBand        string   `db:"-" json:"pd_band,omitempty"`
	ModelVersion  *string  `db:"model_version" json:"model_version,omitempty"`
	IsFallback    *bool    `db:"is_fallback" json:"is_fallback,omitempty"`
}
