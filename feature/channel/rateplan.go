package channel

import (
	"time"

	"channel-manager/feature/channel/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeSellRate computes the rate to push for one date.
//
// A seasonal override replaces the base rate entirely and skips the weekend
// surcharge; otherwise Saturday/Sunday dates add the surcharge. The plan's
// discount/markup percentage then applies multiplicatively, and the result
// is rounded to the INR minor unit.
func ComputeSellRate(plan *models.RatePlan, date time.Time) decimal.Decimal {
	rate := plan.BaseRate

	if seasonal, ok := seasonalFor(plan, date); ok {
		rate = seasonal
	} else if models.IsWeekend(date) {
		rate = rate.Add(plan.WeekendSurcharge)
	}

	multiplier := decimal.NewFromInt(1).Add(plan.DiscountPercent.Div(hundred))
	return rate.Mul(multiplier).Round(2)
}

func seasonalFor(plan *models.RatePlan, date time.Time) (decimal.Decimal, bool) {
	for i := range plan.SeasonalRates {
		if plan.SeasonalRates[i].Covers(date) {
			return plan.SeasonalRates[i].Rate, true
		}
	}
	return decimal.Zero, false
}
