package services

import (
	"github.com/shopspring/decimal"
)

// moneyScale is the number of decimal places kept for every monetary value. No currency uses more.
const moneyScale = 3

func toDecimal(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Round(moneyScale)
}

func fromDecimal(d decimal.Decimal) float64 {
	f, _ := d.Round(moneyScale).Float64()
	return f
}

// roundAmount rounds a currency amount to the fixed money scale.
func roundAmount(amount float64) float64 {
	return fromDecimal(toDecimal(amount))
}

// itemSubtotal returns unit price times quantity at the fixed money scale.
func itemSubtotal(price float64, quantity int) float64 {
	return fromDecimal(toDecimal(price).Mul(decimal.NewFromInt(int64(quantity))))
}

// sumAmounts rounds each amount before adding so float drift never accumulates.
func sumAmounts(amounts ...float64) float64 {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(toDecimal(amount))
	}
	return fromDecimal(total)
}

func subtractAmount(a, b float64) float64 {
	return fromDecimal(toDecimal(a).Sub(toDecimal(b)))
}

// ratio divides at full precision; zero denominators yield zero.
func ratio(numerator, denominator float64) float64 {
	den := decimal.NewFromFloat(denominator)
	if den.IsZero() {
		return 0
	}
	f, _ := decimal.NewFromFloat(numerator).Div(den).Float64()
	return f
}

// formatAmount renders an amount as a fixed three decimal string.
func formatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(moneyScale)
}

// amountsMatch compares two amounts at the fixed money scale.
func amountsMatch(a, b float64) bool {
	return formatAmount(a) == formatAmount(b)
}
