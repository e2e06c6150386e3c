package policy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Table is the read-only view of one policy version that the level ledger,
// the decision engine and the claims builder consult. It is never mutated after
// construction, so a *Table can be shared freely between goroutines.
type Table struct {
	version       string
	caps          [MaxLevel + 1]decimal.Decimal
	streaks       [MaxLevel + 1]int
	names         [MaxLevel + 1]string
	perks         [MaxLevel + 1][]string
	thresholds    Thresholds
	oneActiveLoan bool
	maxTermWeeks  int
	fallbackRatio decimal.Decimal
}

// NewTable validates params and freezes them into a Table.
func NewTable(version string, p Params) (*Table, error) {
	if strings.TrimSpace(version) == "" {
		return nil, &ParamsError{Field: "version", Reason: "is required"}
	}

	t := &Table{
		version:       version,
		thresholds:    p.PDThresholds,
		oneActiveLoan: p.OneActiveLoan,
		maxTermWeeks:  p.MaxLoanTermWeeks,
		fallbackRatio: p.FallbackApproveRatio,
	}

	for lvl := 0; lvl <= MaxLevel; lvl++ {
		c, ok := p.Caps[lvl]
		if !ok || !c.IsPositive() {
			return nil, &ParamsError{Field: fmt.Sprintf("caps[%d]", lvl), Reason: "must be a positive amount"}
		}
		if lvl > 0 && c.LessThan(t.caps[lvl-1]) {
			return nil, &ParamsError{Field: fmt.Sprintf("caps[%d]", lvl), Reason: "must not be lower than the previous level"}
		}
		t.caps[lvl] = c

		s, ok := p.StreakRequirements[lvl]
		if lvl < MaxLevel && (!ok || s < 1) {
			return nil, &ParamsError{Field: fmt.Sprintf("streak_requirements[%d]", lvl), Reason: "must be at least 1"}
		}
		if lvl == MaxLevel {
			s = 0
		}
		t.streaks[lvl] = s

		t.names[lvl] = p.LevelNames[lvl]
		if t.names[lvl] == "" {
			t.names[lvl] = fmt.Sprintf("Level %d", lvl)
		}
		t.perks[lvl] = append([]string(nil), p.Perks[lvl]...)
	}

	if t.thresholds.Approve <= 0 || t.thresholds.Approve > t.thresholds.Counter || t.thresholds.Counter > 1 {
		return nil, &ParamsError{Field: "pd_thresholds", Reason: "must satisfy 0 < approve <= counter <= 1"}
	}
	if t.maxTermWeeks < 1 || t.maxTermWeeks > 52 {
		return nil, &ParamsError{Field: "max_loan_term_weeks", Reason: "must be between 1 and 52"}
	}
	if !t.fallbackRatio.IsPositive() || t.fallbackRatio.GreaterThan(decimal.NewFromInt(1)) {
		return nil, &ParamsError{Field: "fallback_approve_ratio", Reason: "must be in (0, 1]"}
	}

	return t, nil
}

// MustDefaultTable returns the launch policy as a Table.
func MustDefaultTable() *Table {
	t, err := NewTable(DefaultVersion, DefaultParams())
	if err != nil {
		panic(err)
	}
	return t
}

func clamp(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

func (t *Table) Version() string { return t.version }

// CapFor is the unlocked borrowing cap at level.
func (t *Table) CapFor(level int) decimal.Decimal { return t.caps[clamp(level)] }

// NextCap is the cap one level up, or the current cap at MaxLevel.
func (t *Table) NextCap(level int) decimal.Decimal { return t.caps[clamp(level+1)] }

// RequiredStreakFor is the number of consecutive good completions needed to leave level. Zero at MaxLevel.
func (t *Table) RequiredStreakFor(level int) int { return t.streaks[clamp(level)] }

func (t *Table) NameFor(level int) string { return t.names[clamp(level)] }

// PerksFor returns a copy of the perk list unlocked at level.
func (t *Table) PerksFor(level int) []string {
	return append([]string(nil), t.perks[clamp(level)]...)
}

func (t *Table) Thresholds() Thresholds                { return t.thresholds }
func (t *Table) OneActiveLoan() bool                   { return t.oneActiveLoan }
func (t *Table) MaxLoanTermWeeks() int                 { return t.maxTermWeeks }
func (t *Table) FallbackApproveRatio() decimal.Decimal { return t.fallbackRatio }

// Params rebuilds the map form, e.g. for display or for deriving a new version.
func (t *Table) Params() Params {
	p := Params{
		Caps:                 make(map[int]decimal.Decimal, MaxLevel+1),
		StreakRequirements:   make(map[int]int, MaxLevel+1),
		LevelNames:           make(map[int]string, MaxLevel+1),
		Perks:                make(map[int][]string, MaxLevel+1),
		PDThresholds:         t.thresholds,
		OneActiveLoan:        t.oneActiveLoan,
		MaxLoanTermWeeks:     t.maxTermWeeks,
		FallbackApproveRatio: t.fallbackRatio,
	}
	for lvl := 0; lvl <= MaxLevel; lvl++ {
		p.Caps[lvl] = t.caps[lvl]
		p.StreakRequirements[lvl] = t.streaks[lvl]
		p.LevelNames[lvl] = t.names[lvl]
		p.Perks[lvl] = t.PerksFor(lvl)
	}
	return p
}
