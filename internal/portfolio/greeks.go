// Package portfolio aggregates Greek exposure across positions and
// allocates capital between strategies with a mean-CVaR objective.
package portfolio

import (
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/pricing"
)

// CondorGreeks sums the per-unit Greeks of the four legs scaled by the
// signed quantity. Short legs contribute negatively, so a balanced
// condor nets out close to delta-neutral at entry.
func CondorGreeks(strikes model.StrikeSet, qty int, spot, yearsToExpiry, rate, sigma float64) (pricing.Greeks, error) {
	var total pricing.Greeks
	for _, leg := range []enum.Leg{enum.LegShortCall, enum.LegLongCall, enum.LegShortPut, enum.LegLongPut} {
		g, err := pricing.ComputeGreeks(leg.OptionType(), spot, strikes.Quote(leg).Strike, yearsToExpiry, rate, sigma)
		if err != nil {
			return pricing.Greeks{}, err
		}
		signed := float64(qty)
		if leg.IsShort() {
			signed = -signed
		}
		total.Delta += g.Delta * signed
		total.Gamma += g.Gamma * signed
		total.Theta += g.Theta * signed
		total.Vega += g.Vega * signed
	}
	return total, nil
}

// Aggregate sums Greek exposure across positions.
func Aggregate(greeks ...pricing.Greeks) pricing.Greeks {
	var total pricing.Greeks
	for _, g := range greeks {
		total.Delta += g.Delta
		total.Gamma += g.Gamma
		total.Theta += g.Theta
		total.Vega += g.Vega
	}
	return total
}
