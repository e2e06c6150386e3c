package loan

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/domain/level"
)

func TestBuildSchedule(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	amount := decimal.NewFromInt(1000)
	sched := BuildSchedule(uuid.New(), amount, 3, start)

	if len(sched) != 3 {
		t.Fatalf("expected 3 instalments, got %d", len(sched))
	}
	sum := decimal.Zero
	for i, rp := range sched {
		if rp.Sequence != i+1 {
			t.Errorf("instalment %d has sequence %d", i, rp.Sequence)
		}
		if want := start.AddDate(0, 0, 7*(i+1)); !rp.DueDate.Equal(want) {
			t.Errorf("instalment %d due %v, want %v", i, rp.DueDate, want)
		}
		if rp.Status != RepaymentPending {
			t.Errorf("instalment %d status %s", i, rp.Status)
		}
		sum = sum.Add(rp.Amount)
	}
	if !sum.Equal(amount) {
		t.Fatalf("instalments sum to %s, want %s", sum, amount)
	}
	if !sched[0].Amount.Equal(decimal.RequireFromString("333.33")) || !sched[2].Amount.Equal(decimal.RequireFromString("333.34")) {
		t.Fatalf("unexpected split %s %s", sched[0].Amount, sched[2].Amount)
	}
}

func paid(seq int, due time.Time, at time.Time) *Repayment {
	rp := &Repayment{Sequence: seq, DueDate: due, PaidAt: &at}
	rp.Status = settledStatus(rp, at)
	return rp
}

func TestCompletionOutcome(t *testing.T) {
	due1 := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	due2 := due1.AddDate(0, 0, 7)

	first := paid(1, due1, due1.Add(-time.Hour))
	secondOnDue := paid(2, due2, due2)
	secondLate := paid(2, due2, due2.Add(time.Hour))
	secondEarly := paid(2, due2, due2.Add(-48*time.Hour))
	firstLate := paid(1, due1, due1.Add(time.Hour))

	tests := []struct {
		name     string
		reps     []*Repayment
		closing  *Repayment
		want     level.Outcome
		complete bool
	}{
		{
			name:    "open instalment",
			reps:    []*Repayment{first, {Sequence: 2, DueDate: due2, Status: RepaymentPending}},
			closing: first,
		},
		{
			name:     "closing payment early",
			reps:     []*Repayment{secondEarly, paid(1, due1, due1)},
			closing:  secondEarly,
			want:     level.OutcomeEarly,
			complete: true,
		},
		{
			name:     "closing payment on due date",
			reps:     []*Repayment{first, secondOnDue},
			closing:  secondOnDue,
			want:     level.OutcomeOnTime,
			complete: true,
		},
		{
			name:     "closing payment after due date is ontime",
			reps:     []*Repayment{first, secondLate},
			closing:  secondLate,
			want:     level.OutcomeOnTime,
			complete: true,
		},
		{
			name:     "earlier late instalment does not taint an early close",
			reps:     []*Repayment{firstLate, secondEarly},
			closing:  secondEarly,
			want:     level.OutcomeEarly,
			complete: true,
		},
		{
			name:     "lower sequence closes the loan early",
			reps:     []*Repayment{first, secondOnDue},
			closing:  first,
			want:     level.OutcomeEarly,
			complete: true,
		},
		{
			name: "empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, complete := CompletionOutcome(tt.reps, tt.closing)
			if complete != tt.complete || got != tt.want {
				t.Fatalf("got (%q, %v), want (%q, %v)", got, complete, tt.want, tt.complete)
			}
		})
	}
}
