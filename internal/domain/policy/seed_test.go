package policy

import (
	"errors"
	"strings"
	"testing"
)

func TestLoadSeedFileMatchesLaunchPolicy(t *testing.T) {
	version, p, err := LoadSeedFile("../../../configs/policy.v1.0.0.yaml")
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if version != DefaultVersion {
		t.Fatalf("version = %q, want %q", version, DefaultVersion)
	}

	def := DefaultParams()
	for lvl := 0; lvl <= MaxLevel; lvl++ {
		if !p.Caps[lvl].Equal(def.Caps[lvl]) {
			t.Errorf("caps[%d] = %s, want %s", lvl, p.Caps[lvl], def.Caps[lvl])
		}
		if p.StreakRequirements[lvl] != def.StreakRequirements[lvl] {
			t.Errorf("streak_requirements[%d] = %d, want %d", lvl, p.StreakRequirements[lvl], def.StreakRequirements[lvl])
		}
		if p.LevelNames[lvl] != def.LevelNames[lvl] {
			t.Errorf("level_names[%d] = %q, want %q", lvl, p.LevelNames[lvl], def.LevelNames[lvl])
		}
	}
	if p.PDThresholds != def.PDThresholds {
		t.Errorf("pd_thresholds = %+v, want %+v", p.PDThresholds, def.PDThresholds)
	}
	if !p.FallbackApproveRatio.Equal(def.FallbackApproveRatio) {
		t.Errorf("fallback_approve_ratio = %s, want %s", p.FallbackApproveRatio, def.FallbackApproveRatio)
	}
}

func TestParseSeedDefaultsOptionalFields(t *testing.T) {
	doc := `
version: v2.0.0
caps: {0: 600, 1: 800, 2: 1000, 3: 1200, 4: 1500, 5: 2000, 6: 2500, 7: 3000, 8: 3500, 9: 4000, 10: 6000}
streak_requirements: {0: 1, 1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 6: 4, 7: 4, 8: 5, 9: 5, 10: 0}
one_active_loan: false
`
	version, p, err := ParseSeed(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if version != "v2.0.0" {
		t.Fatalf("version = %q", version)
	}
	if p.OneActiveLoan {
		t.Fatal("one_active_loan should be false as written")
	}
	if p.MaxLoanTermWeeks != 52 {
		t.Fatalf("max term should fall back to 52, got %d", p.MaxLoanTermWeeks)
	}
	if p.LevelNames[3] != "Gold" {
		t.Fatalf("level names should fall back to launch names, got %q", p.LevelNames[3])
	}
}

func TestParseSeedRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown field": "version: v1\nbogus: 1\n",
		"missing caps":  "version: v1\nstreak_requirements: {0: 1}\n",
		"no version":    "caps: {0: 500}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := ParseSeed(strings.NewReader(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	_, _, err := ParseSeed(strings.NewReader("version: v1\ncaps: {0: 500}\n"))
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestEncodeSeedRoundTrip(t *testing.T) {
	raw, err := EncodeSeed("v1.0.1", DefaultParams())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	version, p, err := ParseSeed(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("parse encoded seed: %v", err)
	}
	if version != "v1.0.1" {
		t.Fatalf("version = %q", version)
	}
	if !p.Caps[10].Equal(DefaultParams().Caps[10]) {
		t.Fatalf("caps[10] = %s", p.Caps[10])
	}
}
