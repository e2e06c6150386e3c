package policy

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultTableLookups(t *testing.T) {
	tbl := MustDefaultTable()

	cases := []struct {
		level  int
		cap    int64
		streak int
		name   string
	}{
		{0, 500, 1, "Starter"},
		{1, 750, 2, "Bronze"},
		{5, 2000, 6, "Diamond"},
		{9, 4000, 10, "Legend"},
		{10, 5000, 0, "Ultimate"},
	}
	for _, tc := range cases {
		if !tbl.CapFor(tc.level).Equal(decimal.NewFromInt(tc.cap)) {
			t.Errorf("CapFor(%d) = %s, want %d", tc.level, tbl.CapFor(tc.level), tc.cap)
		}
		if got := tbl.RequiredStreakFor(tc.level); got != tc.streak {
			t.Errorf("RequiredStreakFor(%d) = %d, want %d", tc.level, got, tc.streak)
		}
		if got := tbl.NameFor(tc.level); got != tc.name {
			t.Errorf("NameFor(%d) = %q, want %q", tc.level, got, tc.name)
		}
	}

	if !tbl.NextCap(10).Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("NextCap at max level should stay at max cap, got %s", tbl.NextCap(10))
	}
	if tbl.Version() != DefaultVersion {
		t.Fatalf("unexpected version %q", tbl.Version())
	}
}

func TestPerksForReturnsCopy(t *testing.T) {
	tbl := MustDefaultTable()
	perks := tbl.PerksFor(1)
	perks[0] = "tampered"
	if tbl.PerksFor(1)[0] == "tampered" {
		t.Fatal("PerksFor must not expose internal state")
	}
}

func TestNewTableRejectsDecreasingCaps(t *testing.T) {
	p := DefaultParams()
	p.Caps[4] = decimal.NewFromInt(100)

	_, err := NewTable("v2", p)
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	var pe *ParamsError
	if !errors.As(err, &pe) || pe.Field != "caps[4]" {
		t.Fatalf("expected caps[4] to be reported, got %v", err)
	}
}

func TestNewTableRejectsMissingStreak(t *testing.T) {
	p := DefaultParams()
	delete(p.StreakRequirements, 3)
	if _, err := NewTable("v2", p); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestNewTableRejectsBadThresholds(t *testing.T) {
	p := DefaultParams()
	p.PDThresholds = Thresholds{Approve: 0.5, Counter: 0.2}
	if _, err := NewTable("v2", p); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestParamsRoundTripThroughTable(t *testing.T) {
	tbl := MustDefaultTable()
	again, err := NewTable("v1.0.1", tbl.Params())
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	for lvl := 0; lvl <= MaxLevel; lvl++ {
		if !again.CapFor(lvl).Equal(tbl.CapFor(lvl)) || again.RequiredStreakFor(lvl) != tbl.RequiredStreakFor(lvl) {
			t.Fatalf("level %d differs after rebuild", lvl)
		}
	}
}
