package report

import "github.com/shopspring/decimal"

// Average is sum/count rounded to one decimal place, half away from zero.
// An empty input averages to zero.
func Average(scores []float64) decimal.Decimal {
	if len(scores) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, s := range scores {
		sum = sum.Add(decimal.NewFromFloat(s))
	}
	return sum.Div(decimal.NewFromInt(int64(len(scores)))).Round(1)
}

// FormatScore renders an aggregate with exactly one decimal digit.
func FormatScore(d decimal.Decimal) string {
	return d.StringFixed(1)
}

// formatAnswer renders a single answer without trailing zeros ("4", "4.5").
func formatAnswer(v float64) string {
	return decimal.NewFromFloat(v).String()
}
