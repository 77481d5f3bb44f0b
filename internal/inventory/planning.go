package inventory

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ReorderPoint = leadTimeDays × dailyUsage + safetyStock.
func ReorderPoint(leadTimeDays, dailyUsage, safetyStock decimal.Decimal) decimal.Decimal {
	return leadTimeDays.Mul(dailyUsage).Add(safetyStock)
}

// EOQ is the economic order quantity sqrt(2·D·S/H). Zero or negative inputs
// yield 0 instead of an error so dashboards can render them.
func EOQ(annualDemand, orderingCost, holdingCost decimal.Decimal) decimal.Decimal {
	if !holdingCost.IsPositive() || !annualDemand.IsPositive() || orderingCost.IsNegative() {
		return decimal.Zero
	}
	ratio := decimal.NewFromInt(2).Mul(annualDemand).Mul(orderingCost).Div(holdingCost)
	return decimal.NewFromFloat(math.Sqrt(ratio.InexactFloat64())).Round(4)
}

// Turnover = costOfGoodsSold / averageInventoryValue, 0 when the denominator is 0.
func Turnover(costOfGoodsSold, averageInventoryValue decimal.Decimal) decimal.Decimal {
	if averageInventoryValue.IsZero() {
		return decimal.Zero
	}
	return costOfGoodsSold.Div(averageInventoryValue)
}

// ScrapRate is the percentage of produced units that were not good, 0 when nothing was produced.
func ScrapRate(totalProduced, goodUnits decimal.Decimal) decimal.Decimal {
	if totalProduced.IsZero() {
		return decimal.Zero
	}
	return totalProduced.Sub(goodUnits).Div(totalProduced).Mul(hundred)
}

// AverageInventory is the mean of opening and closing inventory value.
func AverageInventory(opening, closing decimal.Decimal) decimal.Decimal {
	return opening.Add(closing).Div(decimal.NewFromInt(2))
}

// PlanningInput parameterises PlanningMetrics.
type PlanningInput struct {
	LeadTimeDays decimal.Decimal
	SafetyStock  decimal.Decimal
	OrderingCost decimal.Decimal
	HoldingCost  decimal.Decimal
	WindowDays   int
}

// Planning summarises replenishment metrics derived from movement history.
type Planning struct {
	DailyUsage   decimal.Decimal `json:"daily_usage"`
	AnnualDemand decimal.Decimal `json:"annual_demand"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
	EOQ          decimal.Decimal `json:"eoq"`
	Turnover     decimal.Decimal `json:"turnover"`
	OnHand       decimal.Decimal `json:"on_hand"`
	BelowReorder bool            `json:"below_reorder"`
}
