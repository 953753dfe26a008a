// Package pricing implements the closed-form Black-Scholes model used
// for delta-targeted strike selection and portfolio Greek exposure.
package pricing

import (
	"math"

	"main/internal/model/enum"
	"main/pkg/exception"
)

// Greeks holds per-unit option sensitivities. Delta is signed; Vega is
// per 1% volatility move; Theta is per calendar day.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

// Delta returns the absolute Black-Scholes delta in [0, 1].
//
// Degenerate inputs (T<=0, sigma<=0, S<=0, K<=0) fail with
// exception.ErrPricingInvalidInput instead of producing NaN; callers
// must guard or propagate.
func Delta(optType enum.OptionType, spot, strike, yearsToExpiry, rate, sigma float64) (float64, error) {
	d1v, err := d1(spot, strike, yearsToExpiry, rate, sigma)
	if err != nil {
		return 0, err
	}
	switch optType {
	case enum.OptionTypeCall:
		return normCDF(d1v), nil
	case enum.OptionTypePut:
		return math.Abs(normCDF(d1v) - 1), nil
	default:
		return 0, exception.ErrPricingInvalidInput
	}
}

// ComputeGreeks returns the full per-unit Greek set for one option.
func ComputeGreeks(optType enum.OptionType, spot, strike, yearsToExpiry, rate, sigma float64) (Greeks, error) {
	d1v, err := d1(spot, strike, yearsToExpiry, rate, sigma)
	if err != nil {
		return Greeks{}, err
	}
	if !optType.IsAvailable() {
		return Greeks{}, exception.ErrPricingInvalidInput
	}

	sqrtT := math.Sqrt(yearsToExpiry)
	d2 := d1v - sigma*sqrtT
	pdf := normPDF(d1v)

	var g Greeks
	if optType == enum.OptionTypeCall {
		g.Delta = normCDF(d1v)
	} else {
		g.Delta = normCDF(d1v) - 1
	}
	g.Gamma = pdf / (spot * sigma * sqrtT)
	g.Vega = spot * pdf * sqrtT / 100

	term := -(spot * pdf * sigma) / (2 * sqrtT)
	if optType == enum.OptionTypeCall {
		g.Theta = (term - rate*strike*math.Exp(-rate*yearsToExpiry)*normCDF(d2)) / 365
	} else {
		g.Theta = (term + rate*strike*math.Exp(-rate*yearsToExpiry)*normCDF(-d2)) / 365
	}
	return g, nil
}

// Price returns the closed-form Black-Scholes premium.
func Price(optType enum.OptionType, spot, strike, yearsToExpiry, rate, sigma float64) (float64, error) {
	d1v, err := d1(spot, strike, yearsToExpiry, rate, sigma)
	if err != nil {
		return 0, err
	}
	d2 := d1v - sigma*math.Sqrt(yearsToExpiry)
	disc := strike * math.Exp(-rate*yearsToExpiry)

	switch optType {
	case enum.OptionTypeCall:
		return spot*normCDF(d1v) - disc*normCDF(d2), nil
	case enum.OptionTypePut:
		return disc*normCDF(-d2) - spot*normCDF(-d1v), nil
	default:
		return 0, exception.ErrPricingInvalidInput
	}
}

func d1(spot, strike, yearsToExpiry, rate, sigma float64) (float64, error) {
	if yearsToExpiry <= 0 || sigma <= 0 || spot <= 0 || strike <= 0 {
		return 0, exception.ErrPricingInvalidInput
	}
	return (math.Log(spot/strike) + (rate+0.5*sigma*sigma)*yearsToExpiry) / (sigma * math.Sqrt(yearsToExpiry)), nil
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
