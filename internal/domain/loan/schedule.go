package loan

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/pkg/money"
)

const instalmentInterval = 7 * 24 * time.Hour

// BuildSchedule lays out weekly instalments starting one week after disbursement
func BuildSchedule(loanID uuid.UUID, amount decimal.Decimal, termWeeks int, disbursedAt time.Time) []*Repayment {
	parts := money.Split(amount, termWeeks)
	out := make([]*Repayment, len(parts))
	for i, part := range parts {
		out[i] = &Repayment{
			ID:       uuid.New(),
			LoanID:   loanID,
			Sequence: i + 1,
			DueDate:  disbursedAt.Add(time.Duration(i+1) * instalmentInterval),
			Amount:   part,
			Status:   RepaymentPending,
		}
	}
	return out
}

// settledStatus is the status an instalment takes when paid at
func settledStatus(r *Repayment, at time.Time) RepaymentStatus {
	if at.After(r.DueDate) {
		return RepaymentLate
	}
	return RepaymentPaid
}

// CompletionOutcome reports false while any instalment of the loan is still
// open. Once every instalment is settled the outcome is taken from the payment
// that closed the loan: early when it beat its own due date, ontime otherwise.
func CompletionOutcome(repayments []*Repayment, closing *Repayment) (level.Outcome, bool) {
	if len(repayments) == 0 || closing == nil || closing.PaidAt == nil {
		return "", false
	}
	for _, r := range repayments {
		if !r.Status.Settled() || r.PaidAt == nil {
			return "", false
		}
	}
	if closing.PaidAt.Before(closing.DueDate) {
		return level.OutcomeEarly, true
	}
	return level.OutcomeOnTime, true
}
