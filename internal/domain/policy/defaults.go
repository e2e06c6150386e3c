package policy

import (
	"github.com/shopspring/decimal"
)

// DefaultParams returns the launch policy: caps from ₱500 to ₱5,000 and one extra
// on-time completion required per level.
func DefaultParams() Params {
	caps := []int64{500, 750, 1000, 1250, 1500, 2000, 2500, 3000, 3500, 4000, 5000}
	names := []string{"Starter", "Bronze", "Silver", "Gold", "Platinum", "Diamond", "Elite", "Master", "Champion", "Legend", "Ultimate"}
	perks := [][]string{
		{"Basic lending access"},
		{"Increased limit: ₱750", "Payment reminders"},
		{"Increased limit: ₱1,000", "Grace period: 1 day"},
		{"Increased limit: ₱1,250", "Lower interest rates", "Priority support"},
		{"Increased limit: ₱1,500", "Flexible payment dates"},
		{"Increased limit: ₱2,000", "Premium features", "Cashback rewards"},
		{"Increased limit: ₱2,500", "VIP support", "Special offers"},
		{"Increased limit: ₱3,000", "Extended terms available"},
		{"Increased limit: ₱3,500", "Exclusive products"},
		{"Increased limit: ₱4,000", "Personal account manager"},
		{"Maximum limit: ₱5,000", "All premium features", "Lifetime benefits"},
	}

	p := Params{
		Caps:                 make(map[int]decimal.Decimal, MaxLevel+1),
		StreakRequirements:   make(map[int]int, MaxLevel+1),
		LevelNames:           make(map[int]string, MaxLevel+1),
		Perks:                make(map[int][]string, MaxLevel+1),
		PDThresholds:         Thresholds{Approve: 0.20, Counter: 0.35},
		OneActiveLoan:        true,
		MaxLoanTermWeeks:     52,
		FallbackApproveRatio: decimal.RequireFromString("0.8"),
	}
	for lvl := 0; lvl <= MaxLevel; lvl++ {
		p.Caps[lvl] = decimal.NewFromInt(caps[lvl])
		p.LevelNames[lvl] = names[lvl]
		p.Perks[lvl] = perks[lvl]
		if lvl < MaxLevel {
			p.StreakRequirements[lvl] = lvl + 1
		} else {
			p.StreakRequirements[lvl] = 0
		}
	}
	return p
}
