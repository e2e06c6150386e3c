package loan

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/policy"
	"github.com/liwaywai/lending-api/internal/pkg/money"
	"github.com/liwaywai/lending-api/internal/pkg/scoring"
)

// Model version tags written to the decision ledger and risk score
const (
	ModelVersionChampion = "champion-v1.0"
	ModelVersionFallback = "fallback-v1.0"
	ModelVersionOverride = "manual-override"
)

// FallbackWarning is returned to the borrower whenever the local rule decided
const FallbackWarning = "Fallback decision used - ML service unavailable"

// fallbackPD is the fixed probability of default recorded by the local rule
const fallbackPD = 0.15

// Reason codes
const (
	ReasonWithinCap      = "Amount within approved limit"
	ReasonGoodHistory    = "Strong repayment history"
	ReasonExceedsCap     = "Amount exceeds current limit"
	ReasonAboveFallback  = "Amount above fallback approval limit"
	ReasonStandardPolicy = "Standard policy assessment"
)

// DecisionResult is what either decision path produces. Both constructors fill
// every field the ledger and risk score need, so rows differ only in provenance.
type DecisionResult struct {
	PD                 float64
	Decision           Decision
	Reasons            []string
	CounterOffer       *CounterOffer
	CounterfactualHint *string
	ModelVersion       string
	IsFallback         bool
}

// FromExternalScore adapts a scorer verdict
func FromExternalScore(resp *scoring.Response) DecisionResult {
	res := DecisionResult{
		PD:                 resp.PD,
		Decision:           Decision(resp.Decision),
		Reasons:            resp.Reasons,
		CounterfactualHint: resp.CounterfactualHint,
		ModelVersion:       resp.ModelVersion,
	}
	if res.ModelVersion == "" {
		res.ModelVersion = ModelVersionChampion
	}
	if len(res.Reasons) == 0 {
		res.Reasons = []string{ReasonStandardPolicy}
	}
	if res.Decision == DecisionCounter && resp.CounterOffer != nil {
		res.CounterOffer = &CounterOffer{
			Amount:    money.Round(resp.CounterOffer.Amount),
			TermWeeks: resp.CounterOffer.TermWeeks,
			Reason:    resp.CounterOffer.Reason,
		}
	}
	return res
}

// FromFallbackPolicy applies the local rule: approve when amount is within the
// fallback share of the borrower's cap, decline otherwise.
func FromFallbackPolicy(t *policy.Table, rec level.Record, amount decimal.Decimal) DecisionResult {
	limit := t.CapFor(rec.Level)
	approveUpTo := limit.Mul(t.FallbackApproveRatio())

	res := DecisionResult{
		PD:           fallbackPD,
		Decision:     DecisionDecline,
		ModelVersion: ModelVersionFallback,
		IsFallback:   true,
	}
	if amount.LessThanOrEqual(approveUpTo) {
		res.Decision = DecisionApprove
	}

	var reasons []string
	if res.Decision == DecisionApprove {
		if rec.OnTimePaid > rec.LatePaid {
			reasons = append(reasons, ReasonGoodHistory)
		}
		if amount.LessThanOrEqual(limit) {
			reasons = append(reasons, ReasonWithinCap)
		}
	} else {
		if amount.GreaterThan(limit) {
			reasons = append(reasons, ReasonExceedsCap)
		} else {
			reasons = append(reasons, ReasonAboveFallback)
		}
		res.CounterfactualHint = counterfactualHint(t, rec, amount)
	}
	if len(reasons) == 0 {
		reasons = []string{ReasonStandardPolicy}
	}
	res.Reasons = reasons
	return res
}

func counterfactualHint(t *policy.Table, rec level.Record, amount decimal.Decimal) *string {
	if rec.Level >= policy.MaxLevel {
		return nil
	}
	hint := fmt.Sprintf("To access %s, reach Level %d by maintaining %d consecutive on-time payments",
		money.Format(amount), rec.Level+1, level.PaymentsNeeded(t, rec))
	return &hint
}

// Status is the loan state the decision moves an application into. A counter
// verdict without an actual offer is a decline.
func (d DecisionResult) Status() Status {
	switch {
	case d.Decision == DecisionApprove:
		return StatusApproved
	case d.Decision == DecisionCounter && d.CounterOffer != nil:
		return StatusCounterOffered
	default:
		return StatusDeclined
	}
}

// PDBand discretizes a probability of default. Each boundary belongs to the lower band.
func PDBand(pd float64) string {
	switch {
	case pd <= 0.05:
		return "Very Low"
	case pd <= 0.15:
		return "Low"
	case pd <= 0.30:
		return "Medium"
	case pd <= 0.50:
		return "High"
	default:
		return "Very High"
	}
}

// NoAssessmentBand is reported for a borrower who never applied
const NoAssessmentBand = "No Assessment"
