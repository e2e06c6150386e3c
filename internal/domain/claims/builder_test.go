package claims

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/loan"
	"github.com/liwaywai/lending-api/internal/domain/policy"
)

func testSubject() *Subject {
	tbl := policy.MustDefaultTable()
	rec := level.Record{Level: 2, Streak: 1, UnlockedCap: tbl.CapFor(2), TotalLoans: 4, OnTimePaid: 3, LatePaid: 1}
	card := &level.CardView{
		DigitalIDCard: level.DigitalIDCard{LiwaywaiID: "LWLOYW3V28A1B2C3", PolicyVersion: tbl.Version()},
		Name:          "maria clara santos",
		KYCLevel:      "basic",
		JoinDate:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	return &Subject{Card: card, Record: rec, Policy: tbl}
}

func TestAssembleDisclosesOnlyRequestedScopes(t *testing.T) {
	c := Assemble(testSubject(), []Scope{ScopeBasicProfile, ScopeBasicProfile, Scope("bank_statements")})

	if len(c.Scopes) != 1 || c.Scopes[0] != ScopeBasicProfile {
		t.Fatalf("unexpected scopes %v", c.Scopes)
	}
	if c.BasicProfile == nil || c.Reliability != nil || c.RiskSnapshot != nil || c.CreditPathway != nil {
		t.Fatalf("unexpected sections %+v", c)
	}

	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected scopes and basic_profile only, got %s", raw)
	}
	if strings.Contains(string(raw), "maria") || strings.Contains(string(raw), "santos") {
		t.Fatalf("full name leaked: %s", raw)
	}
	if c.BasicProfile.NameInitial != "M" {
		t.Fatalf("expected initial M, got %q", c.BasicProfile.NameInitial)
	}
}

func TestReliabilitySection(t *testing.T) {
	c := Assemble(testSubject(), []Scope{ScopeReliability})
	r := c.Reliability
	if r.Level != 2 || r.LevelBadge != "Level 2" || !r.UnlockedCap.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected reliability %+v", r)
	}
	if r.Progress.Required != 3 || r.Progress.Completed != 1 || r.Progress.Percentage != 33.3 {
		t.Fatalf("unexpected progress %+v", r.Progress)
	}
	if r.ReliabilityMetrics.OnTimeRate != 0.75 {
		t.Fatalf("expected on-time rate 0.75, got %v", r.ReliabilityMetrics.OnTimeRate)
	}

	s := testSubject()
	s.Record = level.NewRecord(s.Policy, level.Record{})
	r = Assemble(s, []Scope{ScopeReliability}).Reliability
	if r.ReliabilityMetrics.OnTimeRate != 0 {
		t.Fatalf("expected zero rate without loans, got %v", r.ReliabilityMetrics.OnTimeRate)
	}
}

func TestRiskSnapshotSection(t *testing.T) {
	s := testSubject()
	c := Assemble(s, []Scope{ScopeRiskSnapshot})
	if c.RiskSnapshot == nil || c.RiskSnapshot.PDBand != "No Assessment" || c.RiskSnapshot.PDValue != nil {
		t.Fatalf("expected explicit no-assessment state, got %+v", c.RiskSnapshot)
	}

	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	s.Assessment = &loan.Assessment{PD: 0.3, Reasons: pq.StringArray{"Low risk profile"}, PolicyVersion: "v1.1.0", AssessedAt: at}
	c = Assemble(s, []Scope{ScopeRiskSnapshot})
	rs := c.RiskSnapshot
	if rs.PDBand != "Medium" || rs.PDValue == nil || *rs.PDValue != 0.3 || !rs.AssessmentDate.Equal(at) || rs.PolicyVersion != "v1.1.0" {
		t.Fatalf("unexpected snapshot %+v", rs)
	}
}

func TestCreditPathwaySection(t *testing.T) {
	s := testSubject()
	cp := Assemble(s, []Scope{ScopeCreditPathway}).CreditPathway
	if !cp.CurrentCap.Equal(decimal.NewFromInt(1000)) || !cp.NextCap.Equal(decimal.NewFromInt(1250)) {
		t.Fatalf("unexpected caps %+v", cp)
	}
	if cp.ActionsToLevelUp[0] != "Complete 2 more on-time payments" || cp.EstimatedTimeline != "2 loan cycles" {
		t.Fatalf("unexpected pathway %+v", cp)
	}

	s.Record = level.Record{Level: policy.MaxLevel, UnlockedCap: s.Policy.CapFor(policy.MaxLevel)}
	cp = Assemble(s, []Scope{ScopeCreditPathway}).CreditPathway
	if cp.ActionsToLevelUp[0] != "Maximum level reached" || cp.EstimatedTimeline != "N/A" {
		t.Fatalf("unexpected pathway at max level %+v", cp)
	}
}

type stubLevels struct{ s *Subject }

func (f stubLevels) GetRecord(context.Context, uuid.UUID) (*level.Record, error) {
	rec := f.s.Record
	return &rec, nil
}

func (f stubLevels) GetCard(context.Context, uuid.UUID) (*level.CardView, error) {
	return f.s.Card, nil
}

type countingAssessments struct{ calls int }

func (f *countingAssessments) LatestAssessment(context.Context, uuid.UUID) (*loan.Assessment, error) {
	f.calls++
	return &loan.Assessment{PD: 0.04}, nil
}

func TestBuildReadsAssessmentOnlyWhenDisclosed(t *testing.T) {
	s := testSubject()
	assessments := &countingAssessments{}
	b := NewBuilder(stubLevels{s}, assessments, policy.Fixed{Table: s.Policy})

	c, err := b.Build(context.Background(), uuid.New(), []Scope{ScopeBasicProfile, ScopeCreditPathway})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if assessments.calls != 0 || c.RiskSnapshot != nil {
		t.Fatalf("assessment read without risk scope")
	}

	c, err = b.Build(context.Background(), uuid.New(), AllScopes)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if assessments.calls != 1 || c.RiskSnapshot.PDBand != "Very Low" || len(c.Scopes) != 4 {
		t.Fatalf("unexpected claims %+v", c)
	}
}
