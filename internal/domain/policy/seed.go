package policy

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// seedDoc is the YAML layout operators write when drafting a new version.
type seedDoc struct {
	Version            string           `yaml:"version"`
	Caps               map[int]float64  `yaml:"caps"`
	StreakRequirements map[int]int      `yaml:"streak_requirements"`
	LevelNames         map[int]string   `yaml:"level_names"`
	Perks              map[int][]string `yaml:"perks"`
	PDThresholds       struct {
		Approve float64 `yaml:"approve"`
		Counter float64 `yaml:"counter"`
	} `yaml:"pd_thresholds"`
	OneActiveLoan        *bool    `yaml:"one_active_loan"`
	MaxLoanTermWeeks     int      `yaml:"max_loan_term_weeks"`
	FallbackApproveRatio *float64 `yaml:"fallback_approve_ratio"`
}

// LoadSeedFile reads a policy version from a YAML file
func LoadSeedFile(path string) (string, Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", Params{}, err
	}
	defer f.Close()
	return ParseSeed(f)
}

// ParseSeed decodes a YAML policy document. Omitted optional fields fall back to the
// launch policy; caps and streak requirements must be spelled out.
func ParseSeed(r io.Reader) (string, Params, error) {
	var doc seedDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return "", Params{}, fmt.Errorf("parse policy yaml: %w", err)
	}

	def := DefaultParams()
	p := Params{
		Caps:                 make(map[int]decimal.Decimal, len(doc.Caps)),
		StreakRequirements:   doc.StreakRequirements,
		LevelNames:           doc.LevelNames,
		Perks:                doc.Perks,
		PDThresholds:         Thresholds{Approve: doc.PDThresholds.Approve, Counter: doc.PDThresholds.Counter},
		OneActiveLoan:        def.OneActiveLoan,
		MaxLoanTermWeeks:     doc.MaxLoanTermWeeks,
		FallbackApproveRatio: def.FallbackApproveRatio,
	}
	for lvl, c := range doc.Caps {
		p.Caps[lvl] = decimal.NewFromFloat(c)
	}
	if p.LevelNames == nil {
		p.LevelNames = def.LevelNames
	}
	if p.Perks == nil {
		p.Perks = def.Perks
	}
	if p.PDThresholds == (Thresholds{}) {
		p.PDThresholds = def.PDThresholds
	}
	if doc.OneActiveLoan != nil {
		p.OneActiveLoan = *doc.OneActiveLoan
	}
	if p.MaxLoanTermWeeks == 0 {
		p.MaxLoanTermWeeks = def.MaxLoanTermWeeks
	}
	if doc.FallbackApproveRatio != nil {
		p.FallbackApproveRatio = decimal.NewFromFloat(*doc.FallbackApproveRatio)
	}

	if _, err := NewTable(doc.Version, p); err != nil {
		return "", Params{}, err
	}
	return doc.Version, p, nil
}

// EncodeSeed renders params in the seed layout, e.g. for `lendctl policy export`.
func EncodeSeed(version string, p Params) ([]byte, error) {
	doc := seedDoc{
		Version:            version,
		Caps:               make(map[int]float64, len(p.Caps)),
		StreakRequirements: p.StreakRequirements,
		LevelNames:         p.LevelNames,
		Perks:              p.Perks,
		MaxLoanTermWeeks:   p.MaxLoanTermWeeks,
	}
	for lvl, c := range p.Caps {
		doc.Caps[lvl] = c.InexactFloat64()
	}
	doc.PDThresholds.Approve = p.PDThresholds.Approve
	doc.PDThresholds.Counter = p.PDThresholds.Counter
	oneActive := p.OneActiveLoan
	doc.OneActiveLoan = &oneActive
	ratio := p.FallbackApproveRatio.InexactFloat64()
	doc.FallbackApproveRatio = &ratio

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
