// Package ledger holds the reward and commission state transitions. Every
// function takes an entity snapshot and returns the next state; persisting it
// with a conditional write is the caller's job.
package ledger

import "github.com/shopspring/decimal"

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// cents rounds a monetary amount to two decimal places
func cents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
