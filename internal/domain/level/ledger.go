package level

import (
	"fmt"

	"github.com/liwaywai/lending-api/internal/domain/policy"
)

// Apply folds one payment outcome into rec. It is pure: the caller is responsible
// for loading rec under a per-user lock and persisting the result.
//
// Good outcomes grow the streak and may promote one level, which resets the streak.
// A late outcome resets the streak and never demotes. The cap is recomputed from the
// level on every call.
func Apply(t *policy.Table, rec Record, outcome Outcome) (Record, Progress, error) {
	if !outcome.Valid() {
		return rec, Progress{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	next := rec
	next.TotalLoans++

	var unlocked []string
	changed := false
	if outcome.Good() {
		next.Streak++
		next.OnTimePaid++
		if next.Level < policy.MaxLevel && next.Streak >= t.RequiredStreakFor(next.Level) {
			next.Level++
			next.Streak = 0
			changed = true
			unlocked = t.PerksFor(next.Level)
		}
	} else {
		next.Streak = 0
		next.LatePaid++
	}
	next.UnlockedCap = t.CapFor(next.Level)

	if unlocked == nil {
		unlocked = []string{}
	}
	return next, Progress{
		LevelChanged:         changed,
		NewLevel:             next.Level,
		NewCap:               next.UnlockedCap,
		NewPerksUnlocked:     unlocked,
		CurrentStreak:        next.Streak,
		NextLevelRequirement: t.RequiredStreakFor(next.Level),
		LevelName:            t.NameFor(next.Level),
		NextLevelName:        nextLevelName(t, next.Level),
	}, nil
}

// NewRecord is the starting position of a new borrower
func NewRecord(t *policy.Table, rec Record) Record {
	rec.Level = 0
	rec.Streak = 0
	rec.TotalLoans, rec.OnTimePaid, rec.LatePaid = 0, 0, 0
	rec.UnlockedCap = t.CapFor(0)
	return rec
}

// ProgressFraction is streak / requiredStreak clamped to [0, 1]; 1 at the top level.
func ProgressFraction(t *policy.Table, rec Record) float64 {
	req := t.RequiredStreakFor(rec.Level)
	if rec.Level >= policy.MaxLevel || req <= 0 {
		return 1
	}
	f := float64(rec.Streak) / float64(req)
	if f > 1 {
		return 1
	}
	return f
}

// PaymentsNeeded is how many more good completions promote rec
func PaymentsNeeded(t *policy.Table, rec Record) int {
	if rec.Level >= policy.MaxLevel {
		return 0
	}
	if n := t.RequiredStreakFor(rec.Level) - rec.Streak; n > 0 {
		return n
	}
	return 0
}

// Project refreshes the card fields derived from rec. Identity fields are kept.
func Project(t *policy.Table, rec Record, card DigitalIDCard) DigitalIDCard {
	card.UserID = rec.UserID
	card.LevelSnapshot = rec.Level
	card.LevelName = t.NameFor(rec.Level)
	card.CapCurrent = t.CapFor(rec.Level)
	card.CapNext = t.NextCap(rec.Level)
	card.Streak = rec.Streak
	card.RequiredStreak = t.RequiredStreakFor(rec.Level)
	card.Progress = ProgressFraction(t, rec)
	card.PolicyVersion = t.Version()
	return card
}

// Describe builds the borrower-facing summary of rec
func Describe(t *policy.Table, rec Record) Info {
	info := Info{
		CurrentLevel:   rec.Level,
		LevelName:      t.NameFor(rec.Level),
		CurrentCap:     t.CapFor(rec.Level),
		Streak:         rec.Streak,
		TotalLoans:     rec.TotalLoans,
		OnTimePaid:     rec.OnTimePaid,
		LatePaid:       rec.LatePaid,
		OnTimeRate:     rec.OnTimeRate(),
		NextLevelName:  nextLevelName(t, rec.Level),
		PaymentsNeeded: PaymentsNeeded(t, rec),
		Progress:       ProgressFraction(t, rec),
		CurrentPerks:   t.PerksFor(rec.Level),
		NextLevelPerks: []string{},
		IsMaxLevel:     rec.Level >= policy.MaxLevel,
		PolicyVersion:  t.Version(),
	}
	if !info.IsMaxLevel {
		n := rec.Level + 1
		c := t.CapFor(n)
		info.NextLevel = &n
		info.NextLevelCap = &c
		info.NextLevelPerks = t.PerksFor(n)
	}
	return info
}

func nextLevelName(t *policy.Table, lvl int) string {
	if lvl >= policy.MaxLevel {
		return "Max Level"
	}
	return t.NameFor(lvl + 1)
}
