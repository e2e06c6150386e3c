package loan

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApplyRequest is the body of POST /loans/apply
type ApplyRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	TermWeeks int             `json:"term_weeks" validate:"required,gte=1,lte=52"`
	Purpose   string          `json:"purpose" validate:"required,min=5,max=200"`
}

// Loan amount bounds accepted by the API
var (
	MinAmount = decimal.NewFromInt(100)
	MaxAmount = decimal.NewFromInt(10000)
)

// DecisionView is the loan decision result returned to the borrower
type DecisionView struct {
	LoanID             uuid.UUID     `json:"loan_id"`
	Status             Status        `json:"status"`
	Decision           Decision      `json:"decision"`
	Reasons            []string      `json:"reasons"`
	PD                 float64       `json:"pd"`
	PDBand             string        `json:"pd_band"`
	CounterOffer       *CounterOffer `json:"counter_offer,omitempty"`
	CounterfactualHint *string       `json:"counterfactual_hint,omitempty"`
	ModelVersion       string        `json:"model_version"`
	DecidedAt          time.Time     `json:"decided_at"`
	Warning            string        `json:"warning,omitempty"`
}

func newDecisionView(l *Loan, res DecisionResult, at time.Time) *DecisionView {
	v := &DecisionView{
		LoanID:             l.ID,
		Status:             l.Status,
		Decision:           res.Decision,
		Reasons:            res.Reasons,
		PD:                 res.PD,
		PDBand:             PDBand(res.PD),
		CounterOffer:       res.CounterOffer,
		CounterfactualHint: res.CounterfactualHint,
		ModelVersion:       res.ModelVersion,
		DecidedAt:          at,
	}
	if res.IsFallback {
		v.Warning = FallbackWarning
	}
	return v
}

// RiskScoreView adds the display band to a stored score
type RiskScoreView struct {
	*RiskScore
	PDBand string `json:"pd_band"`
}

// Detail is GET /loans/{id}
type Detail struct {
	*Loan
	Decision   *DecisionRecord `json:"decision"`
	RiskScore  *RiskScoreView  `json:"risk_score"`
	Repayments []*Repayment    `json:"repayments"`
}

// OverrideRequest is the admin body for overriding a decision
type OverrideRequest struct {
	Decision string `json:"decision" validate:"required,override_decision"`
	Note     string `json:"note" validate:"required,min=10,max=500"`
}

// OverrideResult carries the state before and after an override
type OverrideResult struct {
	Loan           *Loan  `json:"loan"`
	PreviousStatus Status `json:"previous_status"`
}
