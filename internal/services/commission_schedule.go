package services

import (
	"time"

	"github.com/shopspring/decimal"

	"referral-engine/internal/models"
)

const (
	// MaxCommissionLevels bounds the upward walk for a billing event
	MaxCommissionLevels = 5
	// MaxAuditDepth bounds chain reconstruction during audits
	MaxAuditDepth = 10
	// DefaultHoldPeriod keeps new commissions out of withdrawals
	DefaultHoldPeriod = 7 * 24 * time.Hour
)

// DefaultMinimumPayout is the smallest withdrawal in USD
var DefaultMinimumPayout = decimal.NewFromInt(25)

// CommissionRate is the fixed payout for one chain level of a plan
type CommissionRate struct {
	Level   int             `json:"level"`
	Amount  decimal.Decimal `json:"amount"`
	Percent decimal.Decimal `json:"percent"`
}

// PlanSchedule distributes one month of a plan's revenue across the chain
type PlanSchedule struct {
	Plan         models.SubscriptionPlan             `json:"plan"`
	MonthlyPrice decimal.Decimal                     `json:"monthly_price"`
	Rates        [MaxCommissionLevels]CommissionRate `json:"rates"`
}

func rate(level int, amount string, percent int64) CommissionRate {
	return CommissionRate{
		Level:   level,
		Amount:  decimal.RequireFromString(amount),
		Percent: decimal.NewFromInt(percent),
	}
}

// CommissionSchedule maps each paying plan to its per-level commissions
var CommissionSchedule = map[models.SubscriptionPlan]PlanSchedule{
	models.PlanPlus: {
		Plan:         models.PlanPlus,
		MonthlyPrice: decimal.NewFromInt(5),
		Rates: [MaxCommissionLevels]CommissionRate{
			rate(1, "2.00", 40),
			rate(2, "1.50", 30),
			rate(3, "0.80", 16),
			rate(4, "0.50", 10),
			rate(5, "0.20", 4),
		},
	},
	models.PlanPro: {
		Plan:         models.PlanPro,
		MonthlyPrice: decimal.NewFromInt(15),
		Rates: [MaxCommissionLevels]CommissionRate{
			rate(1, "6.00", 40),
			rate(2, "4.05", 27),
			rate(3, "2.40", 16),
			rate(4, "1.35", 9),
			rate(5, "1.20", 8),
		},
	},
}

// LookupCommission returns the commission for a plan at a chain level
func LookupCommission(plan models.SubscriptionPlan, level int) (CommissionRate, bool) {
	schedule, ok := CommissionSchedule[plan]
	if !ok || level < 1 || level > MaxCommissionLevels {
		return CommissionRate{}, false
	}
	return schedule.Rates[level-1], true
}
