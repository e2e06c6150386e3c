package loan

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/policy"
	"github.com/liwaywai/lending-api/internal/pkg/scoring"
)

func TestPDBandBoundaries(t *testing.T) {
	tests := []struct {
		pd   float64
		want string
	}{
		{0, "Very Low"},
		{0.05, "Very Low"},
		{0.050001, "Low"},
		{0.15, "Low"},
		{0.150001, "Medium"},
		{0.30, "Medium"},
		{0.300001, "High"},
		{0.50, "High"},
		{0.500001, "Very High"},
		{1, "Very High"},
	}
	for _, tt := range tests {
		if got := PDBand(tt.pd); got != tt.want {
			t.Errorf("PDBand(%v) = %q, want %q", tt.pd, got, tt.want)
		}
	}
}

func TestFromExternalScore(t *testing.T) {
	hint := "pay on time"
	t.Run("approve", func(t *testing.T) {
		res := FromExternalScore(&scoring.Response{PD: 0.04, Decision: "approve", Reasons: []string{"ok"}, CounterfactualHint: &hint})
		if res.Status() != StatusApproved || res.IsFallback || res.ModelVersion != ModelVersionChampion {
			t.Fatalf("unexpected result %+v", res)
		}
		if res.CounterfactualHint == nil || *res.CounterfactualHint != hint {
			t.Fatalf("hint not carried")
		}
	})

	t.Run("counter with offer", func(t *testing.T) {
		res := FromExternalScore(&scoring.Response{
			PD:       0.25,
			Decision: "counter",
			Reasons:  []string{"Partial amount approved"},
			CounterOffer: &scoring.CounterOffer{
				Amount:    decimal.RequireFromString("350.004"),
				TermWeeks: 8,
				Reason:    "smaller amount",
			},
			ModelVersion: "champion-v2.3",
		})
		if res.Status() != StatusCounterOffered {
			t.Fatalf("expected counter_offered, got %s", res.Status())
		}
		if !res.CounterOffer.Amount.Equal(decimal.RequireFromString("350")) || res.CounterOffer.TermWeeks != 8 {
			t.Fatalf("unexpected offer %+v", res.CounterOffer)
		}
		if res.ModelVersion != "champion-v2.3" {
			t.Fatalf("model version not carried: %s", res.ModelVersion)
		}
	})

	t.Run("counter without offer declines", func(t *testing.T) {
		res := FromExternalScore(&scoring.Response{PD: 0.4, Decision: "counter"})
		if res.Status() != StatusDeclined {
			t.Fatalf("expected declined, got %s", res.Status())
		}
		if len(res.Reasons) != 1 || res.Reasons[0] != ReasonStandardPolicy {
			t.Fatalf("expected default reason, got %v", res.Reasons)
		}
	})
}

func TestFromFallbackPolicy(t *testing.T) {
	tbl := policy.MustDefaultTable()
	rec := level.NewRecord(tbl, level.Record{})

	t.Run("approve at the ratio boundary", func(t *testing.T) {
		res := FromFallbackPolicy(tbl, rec, decimal.NewFromInt(400))
		if res.Decision != DecisionApprove || res.Status() != StatusApproved {
			t.Fatalf("expected approve, got %s", res.Decision)
		}
		if !res.IsFallback || res.ModelVersion != ModelVersionFallback || res.PD != 0.15 {
			t.Fatalf("unexpected provenance %+v", res)
		}
		if len(res.Reasons) != 1 || res.Reasons[0] != ReasonWithinCap {
			t.Fatalf("unexpected reasons %v", res.Reasons)
		}
		if res.CounterfactualHint != nil {
			t.Fatalf("approval should carry no hint")
		}
	})

	t.Run("good history reason", func(t *testing.T) {
		r := rec
		r.OnTimePaid = 2
		res := FromFallbackPolicy(tbl, r, decimal.NewFromInt(100))
		if len(res.Reasons) != 2 || res.Reasons[0] != ReasonGoodHistory {
			t.Fatalf("unexpected reasons %v", res.Reasons)
		}
	})

	t.Run("decline above the ratio", func(t *testing.T) {
		res := FromFallbackPolicy(tbl, rec, decimal.RequireFromString("400.01"))
		if res.Decision != DecisionDecline || res.Status() != StatusDeclined {
			t.Fatalf("expected decline, got %s", res.Decision)
		}
		if res.Reasons[0] != ReasonAboveFallback {
			t.Fatalf("unexpected reasons %v", res.Reasons)
		}
		if res.CounterfactualHint == nil || !strings.Contains(*res.CounterfactualHint, "reach Level 1 by maintaining 1 consecutive") {
			t.Fatalf("unexpected hint %v", res.CounterfactualHint)
		}
	})

	t.Run("no hint at max level", func(t *testing.T) {
		top := level.Record{Level: policy.MaxLevel, UnlockedCap: tbl.CapFor(policy.MaxLevel)}
		res := FromFallbackPolicy(tbl, top, decimal.NewFromInt(4500))
		if res.Decision != DecisionDecline {
			t.Fatalf("expected decline, got %s", res.Decision)
		}
		if res.CounterfactualHint != nil {
			t.Fatalf("expected no hint at max level")
		}
	})
}
