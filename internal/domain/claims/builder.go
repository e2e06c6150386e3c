package claims

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/loan"
	"github.com/liwaywai/lending-api/internal/domain/policy"
)

// LevelSource reads the borrower's ladder state and card
type LevelSource interface {
	GetRecord(ctx context.Context, userID uuid.UUID) (*level.Record, error)
	GetCard(ctx context.Context, userID uuid.UUID) (*level.CardView, error)
}

// AssessmentSource reads the borrower's latest risk assessment
type AssessmentSource interface {
	LatestAssessment(ctx context.Context, userID uuid.UUID) (*loan.Assessment, error)
}

// PolicySource resolves the active policy table
type PolicySource interface {
	Active(ctx context.Context) (*policy.Table, error)
}

// Subject is everything a section may read
type Subject struct {
	Card       *level.CardView
	Record     level.Record
	Assessment *loan.Assessment
	Policy     *policy.Table
}

type section func(s *Subject, c *Claims)

var sections = map[Scope]section{
	ScopeBasicProfile: func(s *Subject, c *Claims) {
		v := basicProfile(s)
		c.BasicProfile = &v
	},
	ScopeReliability: func(s *Subject, c *Claims) {
		v := reliability(s)
		c.Reliability = &v
	},
	ScopeRiskSnapshot: func(s *Subject, c *Claims) {
		v := riskSnapshot(s)
		c.RiskSnapshot = &v
	},
	ScopeCreditPathway: func(s *Subject, c *Claims) {
		v := creditPathway(s)
		c.CreditPathway = &v
	},
}

// Assemble builds claims for the requested scopes only. Unknown and repeated
// scopes are dropped.
func Assemble(s *Subject, scopes []Scope) *Claims {
	c := &Claims{Scopes: []Scope{}}
	seen := make(map[Scope]bool, len(scopes))
	for _, sc := range scopes {
		build, ok := sections[sc]
		if !ok || seen[sc] {
			continue
		}
		seen[sc] = true
		build(s, c)
		c.Scopes = append(c.Scopes, sc)
	}
	return c
}

func basicProfile(s *Subject) BasicProfile {
	return BasicProfile{
		LiwaywaiID:  s.Card.LiwaywaiID,
		KYCLevel:    s.Card.KYCLevel,
		JoinDate:    s.Card.JoinDate,
		NameInitial: Initial(s.Card.Name),
	}
}

// Initial reduces a name to its upper-cased first letter
func Initial(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r))
}

func reliability(s *Subject) Reliability {
	rec := s.Record
	return Reliability{
		Level:       rec.Level,
		LevelBadge:  fmt.Sprintf("Level %d", rec.Level),
		UnlockedCap: rec.UnlockedCap,
		Streak:      rec.Streak,
		Progress: ReliabilityProgress{
			Completed:  rec.Streak,
			Required:   s.Policy.RequiredStreakFor(rec.Level),
			Percentage: round1(level.ProgressFraction(s.Policy, rec) * 100),
		},
		ReliabilityMetrics: ReliabilityMetrics{
			TotalLoans: rec.TotalLoans,
			OnTimePaid: rec.OnTimePaid,
			LatePaid:   rec.LatePaid,
			OnTimeRate: math.Round(rec.OnTimeRate()*10000) / 10000,
		},
	}
}

func riskSnapshot(s *Subject) RiskSnapshot {
	a := s.Assessment
	if a == nil {
		return RiskSnapshot{
			PDBand:        loan.NoAssessmentBand,
			PolicyVersion: s.Card.PolicyVersion,
		}
	}
	pd := a.PD
	at := a.AssessedAt
	version := a.PolicyVersion
	if version == "" {
		version = s.Card.PolicyVersion
	}
	reasons := []string(a.Reasons)
	if reasons == nil {
		reasons = []string{}
	}
	return RiskSnapshot{
		PDBand:         loan.PDBand(pd),
		PDValue:        &pd,
		Reasons:        reasons,
		AssessmentDate: &at,
		PolicyVersion:  version,
	}
}

func creditPathway(s *Subject) CreditPathway {
	rec := s.Record
	out := CreditPathway{
		CurrentCap: rec.UnlockedCap,
		NextCap:    s.Policy.NextCap(rec.Level),
	}
	if rec.Level >= policy.MaxLevel {
		out.ActionsToLevelUp = []string{"Maximum level reached"}
		out.EstimatedTimeline = "N/A"
		return out
	}

	n := level.PaymentsNeeded(s.Policy, rec)
	out.ActionsToLevelUp = []string{
		fmt.Sprintf("Complete %d more on-time %s", n, plural(n, "payment", "payments")),
		"Avoid late payments, which reset the streak",
	}
	out.EstimatedTimeline = fmt.Sprintf("%d %s", n, plural(n, "loan cycle", "loan cycles"))
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// Builder loads a borrower's state and assembles scoped claims
type Builder struct {
	levels      LevelSource
	assessments AssessmentSource
	policies    PolicySource
}

// NewBuilder creates claims builder
func NewBuilder(levels LevelSource, assessments AssessmentSource, policies PolicySource) *Builder {
	return &Builder{levels: levels, assessments: assessments, policies: policies}
}

// Build assembles the claims for userID restricted to scopes
func (b *Builder) Build(ctx context.Context, userID uuid.UUID, scopes []Scope) (*Claims, error) {
	card, err := b.levels.GetCard(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec, err := b.levels.GetRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	t, err := b.policies.Active(ctx)
	if err != nil {
		return nil, err
	}

	subj := &Subject{Card: card, Record: *rec, Policy: t}
	for _, sc := range scopes {
		if sc == ScopeRiskSnapshot {
			if subj.Assessment, err = b.assessments.LatestAssessment(ctx, userID); err != nil {
				return nil, err
			}
			break
		}
	}
	return Assemble(subj, scopes), nil
}
